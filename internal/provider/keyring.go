package provider

import "strings"

// Keyring holds one credential per backend.
type Keyring map[ID]string

func (k Keyring) Credentials(id ID) string {
	if k == nil {
		return ""
	}
	return strings.TrimSpace(k[id])
}

// Configured lists backends with a credential, in display order.
func (k Keyring) Configured() []ID {
	var out []ID
	for _, id := range IDs() {
		if k.Credentials(id) != "" {
			out = append(out, id)
		}
	}
	return out
}
