//go:build nocgo
// +build nocgo

package audio

import "errors"

// OpenOto is unavailable in builds without cgo.
func OpenOto(Format) (Device, error) {
	return nil, errors.New("audio output is not available in nocgo builds")
}
