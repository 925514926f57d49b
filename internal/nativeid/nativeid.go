// Package nativeid extracts scan numbers from vendor native identifiers such
// as "controllerType=0 controllerNumber=1 scan=1234".
package nativeid

import (
	"regexp"
	"strconv"
)

var scanRe = regexp.MustCompile(`scan=(\d+)`)

// ScanNumber returns the number of the first scan=<digits> token in id,
// or 0 if there is none.
func ScanNumber(id string) int {
	m := scanRe.FindStringSubmatch(id)
	if len(m) < 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		// Out of int range
		return 0
	}
	return n
}
