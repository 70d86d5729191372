// get.go -- 'get' command implementation
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
	"errors"
	"fmt"

	"github.com/opencoff/go-htab"
)

type getCommand struct{}

func init() {
	m := getCommand{}
	registerCommand("get", &m)
}

// print the count of every key; missing keys have a count of 0
func (m *getCommand) run(args []string, opt *Option) error {
	if len(args) < 3 {
		return fmt.Errorf("get: insufficient args")
	}

	fn := args[1]
	db, err := htab.NewDBReader(fn, len(args))
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}

	defer db.Close()

	for _, k := range args[2:] {
		v, err := db.Find([]byte(k))
		switch {
		case errors.Is(err, htab.ErrNoKey):
			fmt.Printf("%s: 0\n", k)
			continue
		case err != nil:
			return fmt.Errorf("get: %s: %w", k, err)
		}

		n, err := decodeCount(v)
		if err != nil {
			return fmt.Errorf("get: %s: %w", k, err)
		}
		fmt.Printf("%s: %d\n", k, n)
	}
	return nil
}
