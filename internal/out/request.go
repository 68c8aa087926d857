package out

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// titleWidth is the width of the rule printed under request titles.
const titleWidth = 80

// PrintRequest writes a titled, indented JSON view of an outbound request.
func PrintRequest(w io.Writer, title, method string, fields map[string]any) error {
	header := fmt.Sprintf("[%s] %s ", title, method)
	if pad := titleWidth - len(header); pad > 0 {
		header += strings.Repeat("=", pad)
	}
	body, err := json.MarshalIndent(fields, "", "    ")
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n%s\n\n", header, body)
	return err
}
