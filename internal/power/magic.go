package power

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/rileyhilliard/dozer/internal/errors"
)

// PacketSize is the length of a Wake-on-LAN magic packet.
const PacketSize = 6 + 16*6

// ParseMAC accepts six octets with ':' or '-' separators (or none) and
// returns the hardware address.
func ParseMAC(s string) (net.HardwareAddr, error) {
	clean := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s))
	if len(clean) != 12 {
		return nil, invalidMAC(s, nil)
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, invalidMAC(s, err)
	}
	return net.HardwareAddr(b), nil
}

func invalidMAC(s string, cause error) error {
	return errors.WrapWithCode(cause, errors.ErrInvalidAddress,
		fmt.Sprintf("Invalid MAC address format: '%s'", s),
		"Use six hex octets, like 00:11:22:33:44:55")
}

// MagicPacket builds six 0xFF bytes followed by mac repeated 16 times.
func MagicPacket(mac net.HardwareAddr) []byte {
	var buf bytes.Buffer
	buf.Grow(PacketSize)
	buf.Write(bytes.Repeat([]byte{0xFF}, 6))
	for i := 0; i < 16; i++ {
		buf.Write(mac)
	}
	return buf.Bytes()
}
