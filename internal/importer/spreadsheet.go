package importer

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/yourorg/rentaldesk/pkg/types"
)

// ParseResult is the local validation outcome of a partner spreadsheet,
// produced before anything is uploaded to the backend.
type ParseResult struct {
	Partners []types.Partner
	Warnings []string
}

// Parse reads a partner sheet (.xlsx or legacy .xls), maps its header row to
// partner fields and validates each row. Rows without a usable name or email
// are skipped with a warning rather than aborting the whole import.
func Parse(r io.Reader, filename string) (*ParseResult, error) {
	rows, err := readRows(r, filename)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("spreadsheet has no data rows")
	}

	cols := mapHeader(rows[0])
	if cols["nom"] < 0 && cols["nom_entreprise"] < 0 {
		return nil, fmt.Errorf("missing name column (nom or nom_entreprise)")
	}
	if cols["email"] < 0 {
		return nil, fmt.Errorf("missing email column")
	}

	res := &ParseResult{}
	for i, row := range rows[1:] {
		line := i + 2
		p := types.Partner{
			Nom:           cell(row, cols["nom"]),
			NomEntreprise: cell(row, cols["nom_entreprise"]),
			Email:         cell(row, cols["email"]),
			Ville:         cell(row, cols["ville"]),
			Pays:          cell(row, cols["pays"]),
			Telephone:     cell(row, cols["telephone"]),
			SiteInternet:  cell(row, cols["site_internet"]),
		}
		if p.Nom == "" && p.NomEntreprise == "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: missing name, skipped", line))
			continue
		}
		if !strings.Contains(p.Email, "@") {
			res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: invalid email %q, skipped", line, p.Email))
			continue
		}
		res.Partners = append(res.Partners, p)
	}
	return res, nil
}

// headerAliases maps spreadsheet headers, including common French variants,
// onto canonical partner fields.
var headerAliases = map[string]string{
	"nom":            "nom",
	"name":           "nom",
	"contact":        "nom",
	"nom_entreprise": "nom_entreprise",
	"entreprise":     "nom_entreprise",
	"societe":        "nom_entreprise",
	"company":        "nom_entreprise",
	"email":          "email",
	"e-mail":         "email",
	"mail":           "email",
	"ville":          "ville",
	"city":           "ville",
	"pays":           "pays",
	"country":        "pays",
	"telephone":      "telephone",
	"tel":            "telephone",
	"phone":          "telephone",
	"site_internet":  "site_internet",
	"site":           "site_internet",
	"website":        "site_internet",
}

func mapHeader(header []string) map[string]int {
	cols := map[string]int{
		"nom": -1, "nom_entreprise": -1, "email": -1,
		"ville": -1, "pays": -1, "telephone": -1, "site_internet": -1,
	}
	for idx, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, " ", "_")
		if field, ok := headerAliases[key]; ok && cols[field] < 0 {
			cols[field] = idx
		}
	}
	return cols
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func readRows(reader io.Reader, filename string) ([][]string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xls":
		workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, err
		}
		if workbook.NumSheets() == 0 {
			return nil, fmt.Errorf("no worksheet found")
		}
		rows := workbook.ReadAllCells(100000)
		if len(rows) == 0 {
			return nil, fmt.Errorf("worksheet is empty")
		}
		return rows, nil
	default:
		file, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer func() { _ = file.Close() }()

		sheetName := file.GetSheetName(0)
		if sheetName == "" {
			return nil, fmt.Errorf("no worksheet found")
		}
		rows, err := file.GetRows(sheetName)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("worksheet is empty")
		}
		return rows, nil
	}
}
