// text.go -- read words from a variety of text files into a counting table
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
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/opencoff/go-htab"
)

// AddTextFile adds the words in text file 'fn' where words are separated
// by one or more of the characters in 'delim'. Empty lines and lines
// beginning with '#' are skipped. This function just opens the file and
// calls AddTextStream()
// Returns number of words added.
func AddTextFile(tb *htab.Table[string, uint64], fn string, delim string) (uint64, error) {
	fd, err := os.Open(fn)
	if err != nil {
		return 0, err
	}

	if len(delim) == 0 {
		delim = " \t"
	}

	defer fd.Close()

	return AddTextStream(tb, fd, delim)
}

// AddTextStream adds the words in text stream 'fd' where words are
// separated by one or more of the characters in 'delim'. Empty lines and
// lines beginning with '#' are skipped.
// Returns number of words added.
func AddTextStream(tb *htab.Table[string, uint64], fd io.Reader, delim string) (uint64, error) {
	rd := bufio.NewReader(fd)
	sc := bufio.NewScanner(rd)
	ch := make(chan string, 10)

	isDelim := func(r rune) bool {
		return strings.ContainsRune(delim, r)
	}

	// do I/O asynchronously
	go func(sc *bufio.Scanner, ch chan string) {
		for sc.Scan() {
			s := strings.TrimSpace(sc.Text())
			if len(s) == 0 || s[0] == '#' {
				continue
			}

			for _, w := range strings.FieldsFunc(s, isDelim) {
				ch <- w
			}
		}

		close(ch)
	}(sc, ch)

	n, err := addFromChan(tb, ch)
	if err != nil {
		return n, err
	}
	return n, sc.Err()
}

// AddCSVFile adds one field from every line of CSV file 'fn'. 'kwfield'
// is the field# of the word to count; the default is 0.
// If 'comma' is not 0, the default CSV delimiter is ','.
// If 'comment' is not 0, then lines beginning with that rune are discarded.
// Lines where 'kwfield' can't be evaluated are discarded.
// Returns number of words added.
func AddCSVFile(tb *htab.Table[string, uint64], fn string, comma, comment rune, kwfield int) (uint64, error) {
	fd, err := os.Open(fn)
	if err != nil {
		return 0, err
	}

	defer fd.Close()

	return AddCSVStream(tb, fd, comma, comment, kwfield)
}

// AddCSVStream adds one field from every line of CSV stream 'fd'; see
// AddCSVFile.
// Returns number of words added.
func AddCSVStream(tb *htab.Table[string, uint64], fd io.Reader, comma, comment rune, kwfield int) (uint64, error) {
	if kwfield < 0 {
		kwfield = 0
	}

	if comma == 0 {
		comma = ','
	}

	ch := make(chan string, 10)
	cr := csv.NewReader(fd)
	cr.Comma = comma
	cr.Comment = comment
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	// set before ch is closed
	var rerr error

	go func(cr *csv.Reader, ch chan string) {
		defer close(ch)
		for {
			v, err := cr.Read()
			if err != nil {
				if err != io.EOF {
					rerr = err
				}
				return
			}

			if len(v) <= kwfield {
				continue
			}

			ch <- v[kwfield]
		}
	}(cr, ch)

	n, err := addFromChan(tb, ch)
	if err != nil {
		return n, err
	}
	return n, rerr
}

// read words from the chan and count them. Only this goroutine touches
// the table.
func addFromChan(tb *htab.Table[string, uint64], ch chan string) (uint64, error) {
	var n uint64
	for w := range ch {
		if _, err := tb.Insert(w); err != nil {
			// drain so the reader goroutine can finish
			for range ch {
			}
			return n, err
		}
		n++
	}

	return n, nil
}
