package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lexiphanic/restdriver/config"
	"github.com/lexiphanic/restdriver/driver"
	"github.com/lexiphanic/restdriver/repl"
	"github.com/lexiphanic/restdriver/transformer"
	"github.com/urfave/cli/v3"
)

var errMissingSQL = errors.New("expected a single SQL argument")

// loadConfig reads the config named by --config, or the default path when it
// exists, and applies the flag overrides.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if p := cmd.String("config"); p != "" {
		cfg, err = config.Load(p)
	} else {
		cfg, err = config.LoadOrDefault(defaultConfigPath)
	}
	if err != nil {
		return config.Config{}, err
	}
	if u := cmd.String("base-url"); u != "" {
		cfg.BaseURL = u
	}
	if l := cmd.String("log-level"); l != "" {
		cfg.Log.Level = l
	}
	return cfg, cfg.Validate()
}

func openDB(cmd *cli.Command) (*sqlx.DB, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	c, err := driver.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	return sqlx.NewDb(sql.OpenDB(c), driver.DriverName), nil
}

func statementArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", errMissingSQL
	}
	return cmd.Args().First(), nil
}

// parseParams converts command line parameters. Integers, floats, true, false
// and null keep their type, anything else is a string.
func parseParams(raw []string) []any {
	params := make([]any, 0, len(raw))
	for _, p := range raw {
		params = append(params, parseParam(p))
	}
	return params
}

func parseParam(p string) any {
	if i, err := strconv.ParseInt(p, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(p, 64); err == nil {
		return f
	}
	switch strings.ToLower(p) {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	return p
}

func translateAction(_ context.Context, cmd *cli.Command) error {
	query, err := statementArg(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return translate(cmd.Root().Writer, cfg, query, parseParams(cmd.StringSlice("param")))
}

func translate(w io.Writer, cfg config.Config, query string, params []any) error {
	var methods *transformer.MethodMap
	if len(cfg.Methods) > 0 {
		methods = transformer.NewMethodMap(cfg.Methods)
	}
	req, err := transformer.New(methods).Transform(query, params)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s/%s\n", req.Method, strings.TrimRight(cfg.BaseURL, "/"), req.URI())
	if len(req.Body) > 0 {
		fmt.Fprintf(w, "%s\n", req.Body)
	}
	return nil
}

func queryAction(ctx context.Context, cmd *cli.Command) error {
	query, err := statementArg(cmd)
	if err != nil {
		return err
	}
	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()
	rows, err := db.QueryxContext(ctx, query, parseParams(cmd.StringSlice("param"))...)
	if err != nil {
		return err
	}
	defer rows.Close()
	out := []map[string]any{}
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return err
		}
		out = append(out, jsonRow(row))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// jsonRow makes a scanned row printable. Nested values arrive as JSON text.
func jsonRow(row map[string]any) map[string]any {
	for k, v := range row {
		b, ok := v.([]byte)
		if !ok {
			continue
		}
		if json.Valid(b) {
			row[k] = json.RawMessage(b)
		} else {
			row[k] = string(b)
		}
	}
	return row
}

func execAction(ctx context.Context, cmd *cli.Command) error {
	query, err := statementArg(cmd)
	if err != nil {
		return err
	}
	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()
	res, err := db.ExecContext(ctx, query, parseParams(cmd.StringSlice("param"))...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	w := cmd.Root().Writer
	fmt.Fprintf(w, "rows affected: %d\n", n)
	if id, err := res.LastInsertId(); err == nil {
		fmt.Fprintf(w, "last insert id: %d\n", id)
	}
	return nil
}

func replAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	c, err := driver.NewConnector(cfg)
	if err != nil {
		return err
	}
	repl.New(c.DB(), cfg.BaseURL).Run()
	return nil
}

func initAction(_ context.Context, cmd *cli.Command) error {
	p := cmd.String("config")
	if p == "" {
		p = defaultConfigPath
	}
	if _, err := os.Stat(p); err == nil {
		return fmt.Errorf("%s already exists", p)
	}
	cfg := config.Default()
	if u := cmd.String("base-url"); u != "" {
		cfg.BaseURL = u
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(p, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "wrote %s\n", p)
	return nil
}
