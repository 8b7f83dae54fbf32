package imagery

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

type voTable struct {
	Resources []voResource `xml:"RESOURCE"`
}

type voResource struct {
	Infos  []voInfo   `xml:"INFO"`
	Tables []voTableT `xml:"TABLE"`
}

type voInfo struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
	Text  string `xml:",chardata"`
}

type voTableT struct {
	Fields []voField `xml:"FIELD"`
	Rows   []voRow   `xml:"DATA>TABLEDATA>TR"`
}

type voField struct {
	Name string `xml:"name,attr"`
}

type voRow struct {
	Cells []string `xml:"TD"`
}

// tapRows decodes the first table of a VOTable TABLEDATA response into
// name-keyed rows. A QUERY_STATUS of ERROR is returned as an error.
func tapRows(r io.Reader) ([]map[string]string, error) {
	var doc voTable
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode votable: %w", err)
	}
	for _, res := range doc.Resources {
		for _, info := range res.Infos {
			if strings.EqualFold(info.Name, "QUERY_STATUS") && strings.EqualFold(info.Value, "ERROR") {
				return nil, fmt.Errorf("tap query failed: %s", strings.TrimSpace(info.Text))
			}
		}
	}
	for _, res := range doc.Resources {
		for _, table := range res.Tables {
			rows := make([]map[string]string, 0, len(table.Rows))
			for _, tr := range table.Rows {
				row := make(map[string]string, len(table.Fields))
				for i, field := range table.Fields {
					if i < len(tr.Cells) {
						row[field.Name] = strings.TrimSpace(tr.Cells[i])
					}
				}
				rows = append(rows, row)
			}
			return rows, nil
		}
	}
	return nil, nil
}
