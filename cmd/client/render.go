package main

import (
	"bytes"
	stdjson "encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

func renderTable(headers []string, rows [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}

// renderDocList prints a JSON array of documents as a table with one
// column per key, falling back to pretty JSON when the shape is odd.
func renderDocList(data []byte) {
	var docs []map[string]any
	if err := json.Unmarshal(data, &docs); err != nil {
		renderJSON(data)
		return
	}
	if len(docs) == 0 {
		color.Yellow("No documents.")
		return
	}
	headerSet := make(map[string]bool)
	for _, doc := range docs {
		for key := range doc {
			headerSet[key] = true
		}
	}
	headers := make([]string, 0, len(headerSet))
	for key := range headerSet {
		headers = append(headers, key)
	}
	sort.Strings(headers)

	rows := make([][]string, 0, len(docs))
	for _, doc := range docs {
		row := make([]string, len(headers))
		for i, key := range headers {
			if value, ok := doc[key]; ok {
				row[i] = fmt.Sprintf("%v", value)
			}
		}
		rows = append(rows, row)
	}
	renderTable(headers, rows)
	color.Green("%d document(s)", len(docs))
}

func renderDoc(data []byte) {
	renderJSON(data)
}

// renderPage prints the data table followed by the pagination footer.
func renderPage(data []byte) {
	var page struct {
		Data       stdjson.RawMessage `json:"data"`
		Pagination struct {
			TotalDocuments int `json:"totalDocuments"`
			TotalPages     int `json:"totalPages"`
			CurrentPage    int `json:"currentPage"`
			Limit          int `json:"limit"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		renderJSON(data)
		return
	}
	renderDocList(page.Data)
	color.Cyan("page %d/%d (limit %d, %d total)",
		page.Pagination.CurrentPage, page.Pagination.TotalPages,
		page.Pagination.Limit, page.Pagination.TotalDocuments)
}

func renderJSON(data []byte) {
	var pretty bytes.Buffer
	if err := stdjson.Indent(&pretty, data, "", "  "); err == nil {
		fmt.Println(pretty.String())
		return
	}
	fmt.Println(string(data))
}
