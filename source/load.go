// Package source reads stylesheets from CSS files and from <style> elements
// of HTML documents.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// ErrBinary is returned for inputs which are recognized as non text data.
var ErrBinary = errors.New("not a text stylesheet")

// Sheet is a single piece of stylesheet text.
type Sheet struct {
	// Name is the path for CSS files and "path#style[N]" for HTML style
	// elements, N counting from 1.
	Name string
	// Media is the value of media attribute of the style element, empty
	// when absent.
	Media string
	Data  []byte
}

// Loader reads stylesheet sources.
type Loader struct {
	log *zap.Logger
}

func NewLoader(log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{log: log.Named("source")}
}

// Load reads file at path and returns stylesheets it contains.
func (l *Loader) Load(path string) ([]Sheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read source: %w", err)
	}
	return l.Split(path, data)
}

// Split returns stylesheets contained in data. HTML documents are detected by
// name extension or by content.
func (l *Loader) Split(name string, data []byte) ([]Sheet, error) {
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return nil, fmt.Errorf("%s: %w (%s)", name, ErrBinary, kind.MIME.Value)
	}

	if !isHTML(name, data) {
		l.log.Debug("Loaded stylesheet", zap.String("name", name), zap.Int("bytes", len(data)))
		return []Sheet{{Name: name, Data: data}}, nil
	}

	var (
		sheets []Sheet
		err    error
	)
	if isXHTML(name) {
		if sheets, err = extractXMLStyles(name, data); err != nil {
			l.log.Warn("Document is not well-formed XML, reading it as HTML", zap.String("name", name), zap.Error(err))
			sheets, err = extractStyles(name, data, true)
		}
	} else {
		sheets, err = extractStyles(name, data, false)
	}
	if err != nil {
		return nil, err
	}
	l.log.Debug("Loaded HTML document", zap.String("name", name), zap.Int("styles", len(sheets)))
	return sheets, nil
}

func isHTML(name string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm", ".xhtml":
		return true
	case ".css":
		return false
	}
	return strings.HasPrefix(http.DetectContentType(data), "text/html")
}

func isXHTML(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xhtml")
}

// extractXMLStyles collects style elements of XHTML document. Character data
// of CDATA sections is taken without markers.
func extractXMLStyles(name string, data []byte) ([]Sheet, error) {
	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader: charset.NewReaderLabel,
		Permissive:    true,
	}
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%s: unable to parse document: %w", name, err)
	}

	var sheets []Sheet
	for i, el := range doc.FindElements("//style") {
		typ := strings.ToLower(strings.TrimSpace(el.SelectAttrValue("type", "")))
		if typ != "" && typ != "text/css" {
			continue
		}
		var text strings.Builder
		for _, tok := range el.Child {
			if cd, ok := tok.(*etree.CharData); ok {
				text.WriteString(cd.Data)
			}
		}
		sheets = append(sheets, Sheet{
			Name:  fmt.Sprintf("%s#style[%d]", name, i+1),
			Media: strings.TrimSpace(el.SelectAttrValue("media", "")),
			Data:  []byte(text.String()),
		})
	}
	return sheets, nil
}

var cdataMarkers = strings.NewReplacer("<![CDATA[", "", "]]>", "")

// extractStyles walks HTML document and collects text of style elements
// which hold CSS. With xml set CDATA markers are removed from style text.
func extractStyles(name string, data []byte, xml bool) ([]Sheet, error) {
	r, err := charset.NewReader(bytes.NewReader(data), "text/html")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to detect document encoding: %w", name, err)
	}

	var (
		sheets  []Sheet
		inStyle bool
		cur     Sheet
		text    bytes.Buffer
		index   int
	)

	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%s: unable to parse document: %w", name, err)
			}
			return sheets, nil

		case html.StartTagToken:
			tn, hasAttr := z.TagName()
			if atom.Lookup(tn) != atom.Style {
				continue
			}
			index++
			media, typ := "", ""
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				switch string(key) {
				case "media":
					media = strings.TrimSpace(string(val))
				case "type":
					typ = strings.ToLower(strings.TrimSpace(string(val)))
				}
			}
			if typ != "" && typ != "text/css" {
				continue
			}
			inStyle = true
			cur = Sheet{Name: fmt.Sprintf("%s#style[%d]", name, index), Media: media}
			text.Reset()

		case html.TextToken:
			if inStyle {
				text.Write(z.Text())
			}

		case html.EndTagToken:
			tn, _ := z.TagName()
			if inStyle && atom.Lookup(tn) == atom.Style {
				if xml {
					cur.Data = []byte(cdataMarkers.Replace(text.String()))
				} else {
					cur.Data = bytes.Clone(text.Bytes())
				}
				sheets = append(sheets, cur)
				inStyle = false
			}
		}
	}
}
