// Command profile manages stored user data: style profiles, wardrobe
// items, watched pages and auth tokens.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/stylelens/stylelens/config"
	"github.com/stylelens/stylelens/internal/storage"
	"github.com/stylelens/stylelens/internal/style"
)

func main() {
	flag.Usage = usage
	userID := flag.String("user", "default", "user ID to operate on")
	dbPath := flag.String("db", "stylelens.db", "path to the store database")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	config.LoadEnvFile()

	key, err := storage.DeriveKey(config.Getenv("STYLELENS_TOKEN_KEY", "stylelens-dev-key"))
	if err != nil {
		fatal("derive key: %v", err)
	}
	store, err := storage.NewSQLiteStore(*dbPath, key)
	if err != nil {
		fatal("open store: %v", err)
	}
	defer store.Close()

	args := flag.Args()
	switch args[0] {
	case "show":
		showProfile(store, *userID)
	case "set":
		setProfile(store, *userID, args[1:])
	case "delete":
		if err := store.DeleteProfile(*userID); err != nil {
			fatal("delete profile: %v", err)
		}
		if err := store.ClearAnalysisCache(); err != nil {
			fatal("clear analysis cache: %v", err)
		}
		fmt.Println("profile deleted")
	case "wardrobe":
		wardrobe(store, *userID, args[1:])
	case "watch":
		watch(store, *userID, args[1:])
	case "token":
		token(store, *userID, args[1:])
	default:
		usage()
		os.Exit(1)
	}
}

func showProfile(store storage.Store, userID string) {
	p, err := store.GetProfile(userID)
	if err != nil {
		fatal("get profile: %v", err)
	}
	if p == nil {
		fmt.Println("no profile stored")
		return
	}
	printJSON(p)
}

// setProfile reads a profile JSON document from a file or stdin.
func setProfile(store storage.Store, userID string, args []string) {
	var raw []byte
	var err error
	if len(args) > 0 && args[0] != "-" {
		raw, err = os.ReadFile(args[0])
	} else {
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fatal("read profile: %v", err)
	}

	var p style.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		fatal("parse profile: %v", err)
	}
	if err := store.SaveProfile(userID, &p); err != nil {
		fatal("save profile: %v", err)
	}
	// Cached scores against the old profile are stale now.
	if err := store.ClearAnalysisCache(); err != nil {
		fatal("clear analysis cache: %v", err)
	}
	fmt.Printf("profile saved: %d categories, %d colors\n", len(p.Categories), len(p.Colors))
}

func wardrobe(store storage.Store, userID string, args []string) {
	if len(args) == 0 {
		items, err := store.GetWardrobe(userID)
		if err != nil {
			fatal("get wardrobe: %v", err)
		}
		for _, it := range items {
			fmt.Printf("%d\t%s\t%s\n", it.ID, it.Label, it.ImageURL)
		}
		return
	}
	switch args[0] {
	case "add":
		if len(args) < 3 {
			fatal("usage: profile wardrobe add <label> <image url>")
		}
		item := &storage.WardrobeItem{UserID: userID, Label: args[1], ImageURL: args[2]}
		if err := store.AddWardrobeItem(item); err != nil {
			fatal("add wardrobe item: %v", err)
		}
		fmt.Printf("added item %d\n", item.ID)
	case "remove":
		if len(args) < 2 {
			fatal("usage: profile wardrobe remove <id>")
		}
		var id int64
		if _, err := fmt.Sscan(args[1], &id); err != nil {
			fatal("bad item id %q", args[1])
		}
		if err := store.RemoveWardrobeItem(id); err != nil {
			fatal("remove wardrobe item: %v", err)
		}
		fmt.Println("removed")
	default:
		fatal("usage: profile wardrobe [add|remove]")
	}
}

func watch(store storage.Store, userID string, args []string) {
	if len(args) == 0 {
		pages, err := store.GetWatchedPages()
		if err != nil {
			fatal("get watched pages: %v", err)
		}
		for _, p := range pages {
			fmt.Printf("%d\t%s\t%s\n", p.ID, p.UserID, p.URL)
		}
		return
	}
	switch args[0] {
	case "add":
		if len(args) < 2 {
			fatal("usage: profile watch add <url>")
		}
		if err := store.AddWatchedPage(userID, args[1]); err != nil {
			fatal("add watched page: %v", err)
		}
		fmt.Println("watching", args[1])
	case "remove":
		if len(args) < 2 {
			fatal("usage: profile watch remove <id>")
		}
		var id int64
		if _, err := fmt.Sscan(args[1], &id); err != nil {
			fatal("bad page id %q", args[1])
		}
		if err := store.RemoveWatchedPage(id); err != nil {
			fatal("remove watched page: %v", err)
		}
		fmt.Println("removed")
	default:
		fatal("usage: profile watch [add|remove]")
	}
}

func token(store storage.Store, userID string, args []string) {
	if len(args) == 0 {
		tok, err := store.GetAuthToken(userID)
		if err != nil {
			fatal("get token: %v", err)
		}
		if tok == nil {
			fmt.Println("no token stored")
			return
		}
		os.Stdout.Write(tok)
		fmt.Println()
		return
	}
	if args[0] != "set" {
		fatal("usage: profile token [set]")
	}
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		fatal("read token: %v", err)
	}
	if err := store.SetAuthToken(userID, raw); err != nil {
		fatal("set token: %v", err)
	}
	fmt.Println("token stored (encrypted)")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: profile [-user id] [-db path] <command>

commands:
  show                         print the stored style profile
  set [file|-]                 save a profile from a JSON file or stdin
  delete                       delete the stored profile
  wardrobe [add|remove] ...    list or edit wardrobe items
  watch [add|remove] ...       list or edit watched pages
  token [set]                  print or store the auth token`)
}
