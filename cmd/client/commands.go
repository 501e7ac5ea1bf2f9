package main

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"shopcore/internal/domain"
)

func runLogin(client *apiClient, rl *readline.Instance, args []string) bool {
	if len(args) != 1 {
		color.Yellow("usage: login <phone>")
		return false
	}
	password, err := rl.ReadPassword(color.CyanString("password: "))
	if err != nil {
		return false
	}
	data, err := client.request(http.MethodPost, "/api/auth/login", map[string]any{
		"phone":    args[0],
		"password": string(password),
	})
	if err != nil {
		color.Red("Login failed: %v", err)
		return false
	}
	var session struct {
		Token string         `json:"token"`
		User  map[string]any `json:"user"`
	}
	if err := json.Unmarshal(data, &session); err != nil {
		color.Red("Login failed: %v", err)
		return false
	}
	client.token = session.Token
	color.Green("Logged in as %v (%v)", session.User["name"], session.User["role"])
	return true
}

func runLogout(client *apiClient) {
	if client.token == "" {
		return
	}
	if _, err := client.request(http.MethodPost, "/api/auth/logout", nil); err != nil {
		color.Red("Logout failed: %v", err)
		return
	}
	client.token = ""
	color.Green("Logged out.")
}

func runCommand(client *apiClient, line string, args []string) {
	switch args[0] {
	case "collections":
		rows := make([][]string, 0)
		for _, col := range domain.Collections() {
			refs := make([]string, 0, len(col.References))
			for field, target := range col.References {
				refs = append(refs, field+"->"+target)
			}
			rows = append(rows, []string{col.Name, col.Resource, strings.Join(refs, ", ")})
		}
		renderTable([]string{"Name", "Resource", "References"}, rows)

	case "list":
		if len(args) < 2 {
			color.Yellow("usage: list <collection> [conditions]")
			return
		}
		query := url.Values{}
		if len(args) > 2 {
			query.Set("dynamicConditions", strings.TrimSpace(strings.TrimPrefix(line, "list "+args[1])))
		}
		data, err := client.get("/api/data/"+args[1], query)
		if err != nil {
			color.Red("Error: %v", err)
			return
		}
		renderDocList(data)

	case "page":
		if len(args) < 2 {
			color.Yellow("usage: page <collection> [page] [limit]")
			return
		}
		query := url.Values{}
		if len(args) > 2 {
			query.Set("page", args[2])
		}
		if len(args) > 3 {
			query.Set("limit", args[3])
		}
		data, err := client.get("/api/data/"+args[1]+"/pagination", query)
		if err != nil {
			color.Red("Error: %v", err)
			return
		}
		renderPage(data)

	case "insert":
		if len(args) < 3 {
			color.Yellow("usage: insert <collection> <json>")
			return
		}
		fields, ok := parseFields(strings.TrimSpace(strings.TrimPrefix(line, "insert "+args[1])))
		if !ok {
			return
		}
		data, err := client.request(http.MethodPost, "/api/data/"+args[1], map[string]any{"fields": fields})
		if err != nil {
			color.Red("Error: %v", err)
			return
		}
		renderDoc(data)

	case "update":
		if len(args) < 4 {
			color.Yellow("usage: update <collection> <id> <json>")
			return
		}
		fields, ok := parseFields(strings.TrimSpace(strings.TrimPrefix(line, "update "+args[1]+" "+args[2])))
		if !ok {
			return
		}
		data, err := client.request(http.MethodPut, "/api/data/"+args[1]+"/"+args[2], map[string]any{"fields": fields})
		if err != nil {
			color.Red("Error: %v", err)
			return
		}
		renderDoc(data)

	case "delete":
		if len(args) != 3 {
			color.Yellow("usage: delete <collection> <id>")
			return
		}
		if _, err := client.request(http.MethodDelete, "/api/data/"+args[1]+"/"+args[2], nil); err != nil {
			color.Red("Error: %v", err)
			return
		}
		color.Green("Deleted.")

	case "nextid":
		switch {
		case len(args) == 3:
			data, err := client.get("/api/counters/"+args[1]+"/"+args[2], nil)
			if err != nil {
				color.Red("Error: %v", err)
				return
			}
			renderDoc(data)
		case len(args) == 4 && args[1] == "increment":
			if _, err := client.request(http.MethodPost, "/api/counters/"+args[2]+"/"+args[3]+"/increment", nil); err != nil {
				color.Red("Error: %v", err)
				return
			}
			color.Green("Incremented.")
		default:
			color.Yellow("usage: nextid <branch> <collection> | nextid increment <branch> <collection>")
		}

	case "paystatus":
		if len(args) != 2 {
			color.Yellow("usage: paystatus <transactionId>")
			return
		}
		data, err := client.get("/api/payments/"+args[1]+"/status", nil)
		if err != nil {
			color.Red("Error: %v", err)
			return
		}
		renderDoc(data)

	default:
		color.Yellow("Unknown command %q, type 'help'", args[0])
	}
}

func parseFields(raw string) (map[string]any, bool) {
	var fields map[string]any
	if err := json.UnmarshalFromString(raw, &fields); err != nil {
		color.Red("Invalid JSON: %v", err)
		return nil, false
	}
	return fields, true
}
