package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"dbhandle/internal/handle"
)

// connFlags holds the resolved connection settings for one invocation.
type connFlags struct {
	driver         string
	host           string
	port           int
	user           string
	password       string
	database       string
	charset        string
	noAutocommit   bool
	rowShape       string
	connectTimeout time.Duration
	passwordPrompt bool
}

func (f *connFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.driver, "driver", handle.DefaultDriver, "Database driver (mysql, sqlite3, duckdb)")
	fs.StringVar(&f.host, "host", "", "Database server host")
	fs.IntVar(&f.port, "port", handle.DefaultPort, "Database server port")
	fs.StringVarP(&f.user, "user", "u", "", "Database user")
	fs.StringVar(&f.password, "password", "", "Database password")
	fs.StringVarP(&f.database, "database", "d", "", "Database name, or file path for sqlite3/duckdb")
	fs.StringVar(&f.charset, "charset", handle.DefaultCharset, "Connection character set")
	fs.BoolVar(&f.noAutocommit, "no-autocommit", false, "Disable autocommit; only commit makes work durable")
	fs.StringVar(&f.rowShape, "row-shape", handle.RowShapeMap.String(), "Row value shape (map, raw)")
	fs.DurationVar(&f.connectTimeout, "connect-timeout", handle.DefaultConnectTimeout, "Connection timeout")
	fs.BoolVar(&f.passwordPrompt, "password-prompt", false, "Read the password from the terminal")
}

// resolve fills every flag the user did not set, in order: DB_* environment
// variable, then profile value. Defaults from register remain otherwise.
func (f *connFlags) resolve(fs *pflag.FlagSet, p Profile) error {
	resolveString(fs, "driver", "DB_DRIVER", p.Driver, &f.driver)
	resolveString(fs, "host", "DB_HOST", p.Host, &f.host)
	resolveString(fs, "user", "DB_USER", p.User, &f.user)
	resolveString(fs, "password", "DB_PASSWORD", p.Password, &f.password)
	resolveString(fs, "database", "DB_NAME", p.Database, &f.database)
	resolveString(fs, "charset", "DB_CHARSET", p.Charset, &f.charset)
	resolveString(fs, "row-shape", "DB_ROW_SHAPE", p.RowShape, &f.rowShape)

	if !fs.Changed("port") {
		if v := os.Getenv("DB_PORT"); v != "" {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid DB_PORT %q: %w", v, err)
			}
			f.port = port
		} else if p.Port != 0 {
			f.port = p.Port
		}
	}
	if !fs.Changed("no-autocommit") {
		if v := os.Getenv("DB_AUTOCOMMIT"); v != "" {
			on, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid DB_AUTOCOMMIT %q: %w", v, err)
			}
			f.noAutocommit = !on
		} else if p.Autocommit != nil {
			f.noAutocommit = !*p.Autocommit
		}
	}
	if !fs.Changed("connect-timeout") {
		if v := os.Getenv("DB_CONNECT_TIMEOUT"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid DB_CONNECT_TIMEOUT %q: %w", v, err)
			}
			f.connectTimeout = d
		}
	}
	return nil
}

func resolveString(fs *pflag.FlagSet, name, env, profile string, dst *string) {
	if fs.Changed(name) {
		return
	}
	if v := os.Getenv(env); v != "" {
		*dst = v
	} else if profile != "" {
		*dst = profile
	}
}

// handleConfig converts the resolved flags into a handle.Config.
func (f *connFlags) handleConfig(logger *slog.Logger) (handle.Config, error) {
	shape, err := handle.ParseRowShape(f.rowShape)
	if err != nil {
		return handle.Config{}, err
	}
	return handle.Config{
		Driver:         f.driver,
		Host:           f.host,
		Port:           f.port,
		User:           f.user,
		Password:       f.password,
		Database:       f.database,
		Charset:        f.charset,
		Autocommit:     handle.Bool(!f.noAutocommit),
		RowShape:       shape,
		ConnectTimeout: f.connectTimeout,
		Logger:         logger,
	}, nil
}

// readPassword reads a password from in. Terminals get a hidden prompt on
// prompt; anything else is read up to the first newline.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
