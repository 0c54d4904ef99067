// Command arquivo is a CLI client for the arquivo-manager REST API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "arquivo-manager")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "arquivo-manager")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// tokenExpiry reads exp without verifying the signature; the server does that.
func tokenExpiry(tok string, fallback time.Time) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil || claims.ExpiresAt == nil {
		return fallback
	}
	return claims.ExpiresAt.Time
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "api error: status=%d msg=%s\n", ae.Status, ae.Message)
		for _, d := range ae.Details {
			fmt.Fprintf(os.Stderr, "  - %s\n", d)
		}
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func need(ok bool, msg string) {
	if !ok {
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(1)
	}
}

func authed(addr string) *apiClient {
	tok, err := loadToken()
	if err != nil {
		fail(err)
	}
	return newClient(addr, tok)
}

func parseID(s string) string {
	id, err := uuid.FromString(s)
	if err != nil {
		fail(fmt.Errorf("bad id %q: %w", s, err))
	}
	return id.String()
}

// optional returns nil when the flag was not set, so it is left out of partial updates.
func optional(fs *flag.FlagSet, name string, v *string) *string {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	if !set {
		return nil
	}
	return v
}

type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `arquivo CLI
Usage:
  arquivo -addr URL <cmd> [args]

Commands:
  version
  register     -e <email> -p <password> -n <full name>
  login        -e <email> -p <password>             (saves token)
  whoami                                            (validate-role)
  profile
  invite       -e <email> -n <full name> [-role user|operator|admin]
  update-user  -id <uuid> [-n name] [-role r] [-active true|false] [-whatsapp w]
  upload       -file <path> [-perm user:<id>|group:<id>|category:<id> ...]
  mk-category  -n <name> [-d description]
  update-category -id <uuid> -n <name> [-d description]   (admin)
  mk-group     -n <name> [-d description]
  rm-file      -id <uuid>
  rm-category  -id <uuid>
  rm-group     -id <uuid>
  members      -id <group uuid> [-set id,id,... -action set|add|remove]
  events       [-type t] [-user <uuid>] [-since RFC3339] [-limit n]
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	addr := flag.String("addr", envOr("ARQUIVO_ADDR", "http://localhost:8080"), "server base URL")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := run(ctx, *addr, cmd, args); err != nil {
		fail(err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func run(ctx context.Context, addr, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)

	switch cmd {
	case "version":
		fmt.Printf("arquivo %s (%s)\n", version, buildDate)
		return nil

	case "register":
		e := fs.String("e", "", "email")
		p := fs.String("p", "", "password")
		n := fs.String("n", "", "full name")
		_ = fs.Parse(args)
		need(*e != "" && *p != "" && *n != "", "need -e, -p and -n")
		var out struct {
			ID string `json:"id"`
		}
		if err := newClient(addr, "").call(ctx, http.MethodPost, "/api/auth/register",
			map[string]string{"email": *e, "password": *p, "full_name": *n}, &out); err != nil {
			return err
		}
		fmt.Println(out.ID)
		return nil

	case "login":
		e := fs.String("e", "", "email")
		p := fs.String("p", "", "password")
		_ = fs.Parse(args)
		need(*e != "" && *p != "", "need -e and -p")
		var out struct {
			AccessToken string          `json:"access_token"`
			ExpiresAt   time.Time       `json:"expires_at"`
			User        json.RawMessage `json:"user"`
		}
		if err := newClient(addr, "").call(ctx, http.MethodPost, "/api/auth/login",
			map[string]string{"email": *e, "password": *p}, &out); err != nil {
			return err
		}
		exp := out.ExpiresAt
		if exp.IsZero() {
			exp = tokenExpiry(out.AccessToken, time.Now().Add(time.Hour))
		}
		if err := saveToken(out.AccessToken, exp); err != nil {
			return err
		}
		fmt.Println("ok, token valid until", exp.Local().Format(time.RFC3339))
		return nil

	case "whoami":
		return show(ctx, authed(addr), http.MethodGet, "/api/auth/validate-role", nil)

	case "profile":
		return show(ctx, authed(addr), http.MethodGet, "/api/users/profile", nil)

	case "invite":
		e := fs.String("e", "", "email")
		n := fs.String("n", "", "full name")
		role := fs.String("role", "user", "role")
		_ = fs.Parse(args)
		need(*e != "" && *n != "", "need -e and -n")
		return show(ctx, authed(addr), http.MethodPost, "/api/users/invite",
			map[string]string{"email": *e, "full_name": *n, "role": *role})

	case "update-user":
		id := fs.String("id", "", "user id")
		n := fs.String("n", "", "full name")
		role := fs.String("role", "", "role")
		whatsapp := fs.String("whatsapp", "", "whatsapp")
		active := fs.String("active", "", "true|false")
		_ = fs.Parse(args)
		need(*id != "", "need -id")
		body := map[string]any{"user_id": parseID(*id)}
		if v := optional(fs, "n", n); v != nil {
			body["full_name"] = *v
		}
		if v := optional(fs, "role", role); v != nil {
			body["role"] = *v
		}
		if v := optional(fs, "whatsapp", whatsapp); v != nil {
			body["whatsapp"] = *v
		}
		if v := optional(fs, "active", active); v != nil {
			body["active"] = *v == "true"
		}
		return show(ctx, authed(addr), http.MethodPut, "/api/users/update-user", body)

	case "upload":
		file := fs.String("file", "", "path")
		var perms multiFlag
		fs.Var(&perms, "perm", "permission kind:id (repeatable)")
		_ = fs.Parse(args)
		need(*file != "", "need -file")
		list := make([]permission, 0, len(perms))
		for _, p := range perms {
			perm, err := parsePermission(p)
			if err != nil {
				return err
			}
			list = append(list, perm)
		}
		var out any
		if err := authed(addr).upload(ctx, *file, list, &out); err != nil {
			return err
		}
		printJSON(out)
		return nil

	case "mk-category", "mk-group":
		n := fs.String("n", "", "name")
		d := fs.String("d", "", "description")
		_ = fs.Parse(args)
		need(*n != "", "need -n")
		path := map[string]string{"mk-category": "/api/categories", "mk-group": "/api/groups"}[cmd]
		return show(ctx, authed(addr), http.MethodPost, path, nameBody(fs, *n, d))

	case "update-category":
		id := fs.String("id", "", "category id")
		n := fs.String("n", "", "name")
		d := fs.String("d", "", "description")
		_ = fs.Parse(args)
		need(*id != "" && *n != "", "need -id and -n")
		return show(ctx, authed(addr), http.MethodPut, "/api/categories/"+parseID(*id), nameBody(fs, *n, d))

	case "rm-file", "rm-category", "rm-group":
		id := fs.String("id", "", "resource id")
		_ = fs.Parse(args)
		need(*id != "", "need -id")
		kind := map[string]string{"rm-file": "files", "rm-category": "categories", "rm-group": "groups"}[cmd]
		return show(ctx, authed(addr), http.MethodDelete, "/api/"+kind+"/"+parseID(*id), nil)

	case "members":
		id := fs.String("id", "", "group id")
		set := fs.String("set", "", "comma separated user ids")
		action := fs.String("action", "set", "set|add|remove")
		_ = fs.Parse(args)
		need(*id != "", "need -id")
		path := "/api/groups/" + parseID(*id) + "/members"
		if optional(fs, "set", set) == nil {
			return show(ctx, authed(addr), http.MethodGet, path, nil)
		}
		ids := []string{}
		for _, s := range strings.Split(*set, ",") {
			if s = strings.TrimSpace(s); s != "" {
				ids = append(ids, parseID(s))
			}
		}
		return show(ctx, authed(addr), http.MethodPost, path, map[string]any{"user_ids": ids, "action": *action})

	case "events":
		typ := fs.String("type", "", "event type")
		user := fs.String("user", "", "user id")
		since := fs.String("since", "", "RFC 3339 timestamp")
		limit := fs.Int("limit", 0, "max events")
		_ = fs.Parse(args)
		return show(ctx, authed(addr), http.MethodGet, "/api/security/events"+eventsQuery(*typ, *user, *since, *limit), nil)
	}

	usage()
	return nil
}

func nameBody(fs *flag.FlagSet, name string, desc *string) map[string]any {
	body := map[string]any{"name": name}
	if v := optional(fs, "d", desc); v != nil {
		body["description"] = *v
	}
	return body
}

func show(ctx context.Context, c *apiClient, method, path string, body any) error {
	var out any
	if err := c.call(ctx, method, path, body, &out); err != nil {
		return err
	}
	printJSON(out)
	return nil
}

func eventsQuery(typ, user, since string, limit int) string {
	q := url.Values{}
	if typ != "" {
		q.Set("type", typ)
	}
	if user != "" {
		q.Set("user_id", user)
	}
	if since != "" {
		q.Set("since", since)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
