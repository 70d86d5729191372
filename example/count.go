// count.go -- 'count' command implementation
//
// (c) Sudhi Herle 2018
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package main

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/opencoff/go-htab"
	flag "github.com/opencoff/pflag"
)

type countCommand struct{}

func init() {
	m := countCommand{}
	registerCommand("count", &m)
}

func (m *countCommand) run(args []string, opt *Option) (err error) {
	var buckets, field int
	var hash string
	var tb *htab.Table[string, uint64]

	defer func() {
		if tb != nil {
			tb.Destroy()
		}
	}()

	fs := flag.NewFlagSet("count", flag.ExitOnError)
	fs.SetOutput(os.Stdout)
	fs.IntVarP(&buckets, "buckets", "b", 4096, "Use `N` hash buckets")
	fs.StringVarP(&hash, "hash", "H", "default", "Use hash function `H` (default, fast, sip, xx)")
	fs.IntVarP(&field, "field", "f", 0, "Count field `F` of CSV inputs")
	fs.Usage = func() {
		fmt.Printf(`Usage: count [options] DB [INPUT...]

where:
   DB	    is the name of the output snapshot file
   INPUT    is one or more optional input files

The input file(s) must have a name suffix of one of the following:
   .txt	    white space separated words
   .csv	    A comma-separated file; one field is counted

options:
`)
		fs.PrintDefaults()
		os.Exit(0)
	}

	err = fs.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}

	args = fs.Args()
	if len(args) < 1 {
		return fmt.Errorf("count: insufficient args")
	}

	fn := args[0]
	args = args[1:]

	hf, err := hashFunc(hash)
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}

	tb, err = htab.New[string, uint64](buckets, hf, incr, nil, nil)
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}

	var tot uint64
	if len(args) > 0 {
		var n uint64
		for _, f := range args {
			switch {
			case strings.HasSuffix(f, ".txt"):
				n, err = AddTextFile(tb, f, " \t")

			case strings.HasSuffix(f, ".csv"):
				n, err = AddCSVFile(tb, f, ',', '#', field)

			default:
				return fmt.Errorf("count: don't know how to add %s", f)
			}

			if err != nil {
				return fmt.Errorf("count: can't add %s: %w", f, err)
			}

			opt.Printf("+ %s: %d words\n", f, n)
			tot += n
		}
	} else {
		var n uint64

		n, err = AddTextStream(tb, os.Stdin, " \t")
		if err != nil {
			return fmt.Errorf("count: can't add text from stdin: %w", err)
		}

		opt.Printf("+ <STDIN>: %d words\n", n)
		tot += n
	}

	opt.Printf("%s", tb.Desc())

	start := time.Now()
	err = htab.WriteTable(fn, tb, encodeCount)
	if err != nil {
		return fmt.Errorf("count: can't write db %s: %w", fn, err)
	}
	delta := time.Since(start)
	opt.Printf("%d words, %d keys, %s\n", tot, tb.Len(), delta.Truncate(time.Millisecond).String())

	return nil
}

// combine function: every insert bumps the count
func incr(n uint64, _ bool, _ string) uint64 {
	return n + 1
}

func encodeCount(k string, n uint64) ([]byte, []byte, error) {
	var v [8]byte

	binary.BigEndian.PutUint64(v[:], n)
	return []byte(k), v[:], nil
}

func decodeCount(v []byte) (uint64, error) {
	if len(v) != 8 {
		return 0, fmt.Errorf("count is %d bytes; exp 8", len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

func hashFunc(nm string) (htab.HashFunc[string], error) {
	switch nm {
	case "default":
		return htab.StringHash, nil
	case "fast":
		return htab.FastStringHash(rand.Uint64()), nil
	case "sip":
		return htab.SipStringHash(rand.Uint64(), rand.Uint64()), nil
	case "xx":
		return htab.XXStringHash, nil
	}
	return nil, fmt.Errorf("unknown hash function '%s'", nm)
}
