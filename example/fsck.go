// fsck.go -- 'fsck' command implementation
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
	"fmt"
	"os"

	"github.com/opencoff/go-htab"
	flag "github.com/opencoff/pflag"
)

type fsckCommand struct{}

func init() {
	m := fsckCommand{}
	registerCommand("fsck", &m)
}

// fsck verifies the header and index checksum by opening the DB, then
// reads every record to verify its checksum and count encoding.
func (m *fsckCommand) run(args []string, opt *Option) (err error) {
	var db *htab.DBReader

	fs := flag.NewFlagSet("fsck", flag.ExitOnError)
	fs.SetOutput(os.Stdout)
	fs.Usage = func() {
		fmt.Printf(`Usage: fsck [options] DB

where  'DB' is the name of the snapshot

Options:
`)
		fs.PrintDefaults()
		os.Exit(0)
	}

	err = fs.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("fsck: %w", err)
	}

	args = fs.Args()
	if len(args) < 1 {
		return fmt.Errorf("fsck: insufficient args")
	}

	fn := args[0]
	db, err = htab.NewDBReader(fn, 1000)
	if err != nil {
		return fmt.Errorf("fsck: %w", err)
	}

	defer db.Close()

	var n, tot uint64
	err = db.IterFunc(func(k, v []byte) error {
		c, err := decodeCount(v)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		n++
		tot += c
		return nil
	})
	if err != nil {
		return fmt.Errorf("fsck: %s: %w", fn, err)
	}

	if n != uint64(db.Len()) {
		return fmt.Errorf("fsck: %s: exp %d records, saw %d", fn, db.Len(), n)
	}

	opt.Printf("%s", db.Desc())
	opt.Printf("%s: %d keys, %d words\n", fn, n, tot)
	return nil
}
