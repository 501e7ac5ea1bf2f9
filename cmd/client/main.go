// Command client is the interactive admin console. It speaks to the
// HTTP API with a bearer token obtained through the login command.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
)

var preLoginCompleter = readline.NewPrefixCompleter(
	readline.PcItem("login"),
	readline.PcItem("token"),
	readline.PcItem("help"),
	readline.PcItem("exit"),
	readline.PcItem("clear"),
)

var postLoginCompleter = readline.NewPrefixCompleter(
	readline.PcItem("login"),
	readline.PcItem("token"),
	readline.PcItem("logout"),
	readline.PcItem("collections"),
	readline.PcItem("list"),
	readline.PcItem("page"),
	readline.PcItem("insert"),
	readline.PcItem("update"),
	readline.PcItem("delete"),
	readline.PcItem("nextid",
		readline.PcItem("increment"),
	),
	readline.PcItem("paystatus"),
	readline.PcItem("clear"),
	readline.PcItem("help"),
	readline.PcItem("exit"),
)

func main() {
	log.SetFlags(0)

	tokenPtr := flag.String("t", "", "Bearer token to use instead of logging in")
	flag.Parse()

	baseURL := "http://localhost:8080"
	if flag.NArg() > 0 {
		baseURL = flag.Arg(0)
	}
	client := newAPIClient(baseURL)
	client.token = *tokenPtr

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          color.CyanString("shopcore> "),
		HistoryFile:     os.TempDir() + "/shopcore_client_history",
		AutoComplete:    preLoginCompleter,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Fatalf("Failed to start console: %v", err)
	}
	defer rl.Close()

	if client.token != "" {
		rl.Config.AutoComplete = postLoginCompleter
	}
	color.Green("Connected to %s. Type 'help' for commands.", baseURL)

	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		args := strings.Fields(line)
		switch args[0] {
		case "exit":
			return
		case "clear":
			fmt.Print("\033[H\033[2J")
		case "help":
			printHelp()
		case "login":
			if runLogin(client, rl, args[1:]) {
				rl.Config.AutoComplete = postLoginCompleter
			}
		case "token":
			if len(args) != 2 {
				color.Yellow("usage: token <jwt>")
				continue
			}
			client.token = args[1]
			rl.Config.AutoComplete = postLoginCompleter
			color.Green("Token set.")
		case "logout":
			runLogout(client)
			rl.Config.AutoComplete = preLoginCompleter
		default:
			runCommand(client, line, args)
		}
	}
}

func printHelp() {
	fmt.Println(`Commands:
  login <phone>                      authenticate and store the session token
  token <jwt>                        use an existing bearer token
  logout                             revoke the current token
  collections                        list the known collections
  list <collection> [conditions]     fetch matching documents (conditions = JSON array)
  page <collection> [page] [limit]   fetch one page
  insert <collection> <json>         create a document from a JSON fields object
  update <collection> <id> <json>    apply a partial update
  delete <collection> <id>           delete by id
  nextid <branch> <collection>       peek the next sequence number
  nextid increment <branch> <coll>   advance the sequence
  paystatus <transactionId>          payment status of a transaction
  clear | help | exit`)
}
