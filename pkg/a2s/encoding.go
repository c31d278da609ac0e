package a2s

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// ResolveEncoding maps an IANA charset name to a decoder for Client.Encoding.
// UTF-8 (and an empty name) resolve to nil, the client's native handling.
func ResolveEncoding(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return nil, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unknown text encoding %q", name)
	}

	return enc.NewDecoder(), nil
}
