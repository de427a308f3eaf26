package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/urfave/cli/v2"

	"github.com/ZanzyTHEbar/team-pulse/internal/api"
	"github.com/ZanzyTHEbar/team-pulse/internal/auth"
	"github.com/ZanzyTHEbar/team-pulse/internal/config"
	"github.com/ZanzyTHEbar/team-pulse/internal/database"
	"github.com/ZanzyTHEbar/team-pulse/internal/errors"
	"github.com/ZanzyTHEbar/team-pulse/internal/metrics"
	"github.com/ZanzyTHEbar/team-pulse/internal/monitoring"
	"github.com/ZanzyTHEbar/team-pulse/internal/pgstore"
	"github.com/ZanzyTHEbar/team-pulse/internal/types"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "teamctl",
		Usage: "operate a team-pulse database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "driver",
				Value:   config.DriverSQLite,
				Usage:   "storage backend (sqlite or postgres)",
				EnvVars: []string{"DATABASE_DRIVER"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Value:   "./data",
				Usage:   "SQLite data directory",
				EnvVars: []string{"DATA_DIR"},
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Postgres DSN",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			config.LoadDotEnv()
			var level slog.Level
			if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
				return cli.Exit(fmt.Sprintf("invalid log level %q", c.String("log-level")), 2)
			}
			slog.SetDefault(monitoring.NewLoggerTo(c.App.ErrWriter, level).Logger)
			return nil
		},
		Commands: []*cli.Command{
			migrateCommand(),
			seedCommand(),
			calculateCommand(),
			hashPasswordCommand(),
		},
	}
}

// withStore opens the configured backend for the duration of fn
func withStore(c *cli.Context, fn func(store api.Store) error) error {
	var (
		store  api.Store
		closer io.Closer
	)

	switch driver := strings.ToLower(c.String("driver")); driver {
	case config.DriverSQLite:
		db, err := database.NewDB(c.String("data-dir"))
		if err != nil {
			return err
		}
		store, closer = database.NewRepository(db), db
	case config.DriverPostgres:
		if c.String("database-url") == "" {
			return cli.Exit("--database-url is required for postgres", 2)
		}
		pg, err := pgstore.Open(c.String("database-url"))
		if err != nil {
			return err
		}
		store, closer = pg, pg
	default:
		return cli.Exit(fmt.Sprintf("unknown driver %q", driver), 2)
	}

	defer errors.SafeClose(closer, "store")
	return fn(store)
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "create or update the schema",
		Action: func(c *cli.Context) error {
			return withStore(c, func(store api.Store) error {
				if err := store.HealthCheck(c.Context); err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "schema is up to date (%s)\n", c.String("driver"))
				return nil
			})
		},
	}
}

// seedMember is one entry of a members seed file
type seedMember struct {
	Code             string  `json:"code" validate:"required"`
	FullName         string  `json:"fullName" validate:"required,max=255"`
	Email            string  `json:"email" validate:"required,email,max=255"`
	Position         *string `json:"position" validate:"omitempty,max=255"`
	ExperienceMonths *int    `json:"experienceMonths" validate:"omitempty,min=0,max=1200"`
	EmploymentType   *string `json:"employmentType" validate:"omitempty,max=50"`
	IsActive         *bool   `json:"isActive"`
}

func loadSeedMembers(r io.Reader) ([]types.Member, error) {
	var entries []seedMember
	if err := json.NewDecoder(bufio.NewReader(r)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode members file: %w", err)
	}

	validate := validator.New()
	seen := make(map[string]bool, len(entries))
	members := make([]types.Member, 0, len(entries))

	for i, e := range entries {
		if err := validate.Struct(e); err != nil {
			return nil, fmt.Errorf("member #%d: %w", i+1, err)
		}
		code := strings.TrimSpace(e.Code)
		if !api.ValidMemberCode(code) {
			return nil, fmt.Errorf("member #%d: invalid code %q", i+1, e.Code)
		}
		if seen[code] {
			return nil, fmt.Errorf("member #%d: duplicate code %q", i+1, code)
		}
		seen[code] = true

		active := true
		if e.IsActive != nil {
			active = *e.IsActive
		}
		members = append(members, types.Member{
			Code:             code,
			FullName:         strings.TrimSpace(e.FullName),
			Email:            strings.ToLower(strings.TrimSpace(e.Email)),
			Position:         e.Position,
			ExperienceMonths: e.ExperienceMonths,
			EmploymentType:   e.EmploymentType,
			IsActive:         active,
		})
	}
	return members, nil
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "upsert the admin account and optionally import members from a JSON file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "admin-username", EnvVars: []string{"ADMIN_USERNAME"}},
			&cli.StringFlag{Name: "admin-password", EnvVars: []string{"ADMIN_PASSWORD"}},
			&cli.PathFlag{Name: "members", Usage: "JSON array of members to upsert"},
		},
		Action: func(c *cli.Context) error {
			username, password := c.String("admin-username"), c.String("admin-password")
			if (username == "") != (password == "") {
				return cli.Exit("--admin-username and --admin-password must be given together", 2)
			}

			var members []types.Member
			if path := c.Path("members"); path != "" {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				if members, err = loadSeedMembers(f); err != nil {
					return cli.Exit(err.Error(), 2)
				}
			}

			return withStore(c, func(store api.Store) error {
				if username != "" {
					admin, err := auth.SeedAdmin(c.Context, store, username, password)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "admin %q ready (id %d)\n", admin.Username, admin.ID)
				}
				if len(members) > 0 {
					imported, err := store.BulkUpsertMembers(c.Context, members)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "imported %d members\n", len(imported))
				}
				return nil
			})
		},
	}
}

func calculateCommand() *cli.Command {
	return &cli.Command{
		Name:  "calculate",
		Usage: "derive metric rows for one assessment, or for all of them",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "assessment", Aliases: []string{"a"}, Usage: "assessment id"},
			&cli.BoolFlag{Name: "all", Usage: "recalculate every assessment"},
		},
		Action: func(c *cli.Context) error {
			id, all := c.Int64("assessment"), c.Bool("all")
			if (id > 0) == all {
				return cli.Exit("pass exactly one of --assessment or --all", 2)
			}

			return withStore(c, func(store api.Store) error {
				svc := metrics.NewService(store)

				ids := []int64{id}
				if all {
					list, err := store.ListAssessments(c.Context, types.AssessmentQuery{})
					if err != nil {
						return err
					}
					ids = ids[:0]
					for _, a := range list {
						ids = append(ids, a.ID)
					}
				}

				failed := 0
				for _, assessmentID := range ids {
					res, err := svc.CalculateForAssessment(c.Context, assessmentID)
					if err != nil {
						failed++
						appErr := errors.ToAppError(err)
						fmt.Fprintf(c.App.Writer, "assessment %d: %s\n", assessmentID, appErr.Error())
						if !all {
							return cli.Exit("", 1)
						}
						continue
					}
					fmt.Fprintf(c.App.Writer, "assessment %d: %d written, %d skipped\n", assessmentID, res.Count, res.Skipped)
				}

				if failed > 0 {
					return cli.Exit(fmt.Sprintf("%d of %d assessments failed", failed, len(ids)), 1)
				}
				return nil
			})
		},
	}
}

func hashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash-password",
		Usage:     "print a bcrypt hash suitable for the admin_users table",
		ArgsUsage: "[password]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "stdin", Usage: "read the password from stdin"},
		},
		Action: func(c *cli.Context) error {
			password := c.Args().First()
			if c.Bool("stdin") {
				line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
				if err != nil && err != io.EOF {
					return err
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return cli.Exit("a password is required", 2)
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, hash)
			return nil
		},
	}
}
