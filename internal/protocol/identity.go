package protocol

import (
	"fmt"
	"strings"
)

// Identity is the decoded whoAmI reply, e.g. "GH-625" + "M".
type Identity struct {
	Product string `json:"product"`
	Model   string `json:"model"`
}

func (i Identity) String() string { return i.Product + i.Model }

// ParseIdentity decodes a CmdWhoAmI reply parameter: NUL padded ASCII whose
// last character is the model variant.
func ParseIdentity(param []byte) (Identity, error) {
	s := strings.TrimRight(string(param), "\x00 ")
	s = strings.TrimLeft(s, "\x00 ")
	if len(s) < 2 {
		return Identity{}, fmt.Errorf("protocol: identity %q: %w", s, ErrShortPayload)
	}
	return Identity{Product: s[:len(s)-1], Model: s[len(s)-1:]}, nil
}
