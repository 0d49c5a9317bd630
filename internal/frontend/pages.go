package frontend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Pages reads the two HTML templates the start page and the order
// acknowledgement page are rendered from, grounded on
// original_source/src/gis-map-server/net_interface.py's
// Handler.get_html_content. Like the original, templates are read from
// disk on every call rather than cached at startup, so an operator can
// edit the wording without restarting the server.
type Pages struct {
	Dir string
}

func NewPages(dir string) *Pages { return &Pages{Dir: dir} }

func (p *Pages) read(name string) (string, error) {
	b, err := os.ReadFile(filepath.Join(p.Dir, name))
	if err != nil {
		return "", fmt.Errorf("read html page %s: %w", name, err)
	}
	return string(b), nil
}

// StartPage renders start_page.html with the listen address/port spliced
// in, mirroring the ADDRESS/PORT substitution of the original handler.
func (p *Pages) StartPage(address string, port int) (string, error) {
	content, err := p.read("start_page.html")
	if err != nil {
		return "", err
	}
	content = strings.ReplaceAll(content, "ADDRESS", address)
	content = strings.ReplaceAll(content, "PORT", fmt.Sprintf("%d", port))
	return content, nil
}

// OrderRequestPage renders order_request.html with the listen
// address/port and the freshly assigned order id/pincode spliced in.
func (p *Pages) OrderRequestPage(address string, port int, orderID int64, pincode string) (string, error) {
	content, err := p.read("order_request.html")
	if err != nil {
		return "", err
	}
	content = strings.ReplaceAll(content, "ADDRESS", address)
	content = strings.ReplaceAll(content, "PORT", fmt.Sprintf("%d", port))
	content = strings.ReplaceAll(content, "ORDERID", fmt.Sprintf("%d", orderID))
	content = strings.ReplaceAll(content, "PIN_CODE", pincode)
	return content, nil
}
