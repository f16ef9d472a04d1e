package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"talentline/internal/config"
	"talentline/internal/db"
	"talentline/internal/domain"
	"talentline/internal/engine"
	"talentline/internal/engine/access"
	"talentline/internal/migrate"
	"talentline/internal/repo"
	"talentline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Talentline CLI",
	Long: `Talentline runs hiring pipelines: per-job stage topologies, rule-driven
auto-rejection, a transition ledger, SLA dwell monitoring, and role-scoped
job access. The workspace is a .talentline directory holding the SQLite
database; pipeline and SLA defaults live in talentline.yml.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TALENTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "", "acting user id")
	rootCmd.PersistentFlags().String("config", "", "config file (overrides the workspace talentline.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(companyCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(candidateCmd())
	rootCmd.AddCommand(slaCmd())
	rootCmd.AddCommand(alertsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default talentline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func seedCmd() *cobra.Command {
	var companyName string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a company with an admin, hiring manager and recruiter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				now := time.Now().UTC().Format(time.RFC3339)
				company := domain.Company{ID: uuid.NewString(), Name: companyName, CreatedAt: now}
				if err := r.InsertCompany(ctx, company); err != nil {
					return err
				}
				users := []domain.User{
					{ID: uuid.NewString(), CompanyID: company.ID, Name: "Admin", Role: "admin", Status: "active", CreatedAt: now},
					{ID: uuid.NewString(), CompanyID: company.ID, Name: "Hiring Manager", Role: "hiring_manager", Status: "active", CreatedAt: now},
					{ID: uuid.NewString(), CompanyID: company.ID, Name: "Recruiter", Role: "recruiter", Status: "active", CreatedAt: now},
				}
				for _, u := range users {
					if err := r.InsertUser(ctx, u); err != nil {
						return err
					}
				}
				return printJSONOrTable(map[string]any{"company": company, "users": users})
			})
		},
	}
	cmd.Flags().StringVar(&companyName, "name", "Acme", "company name")
	return cmd
}

func companyCmd() *cobra.Command {
	company := &cobra.Command{
		Use:   "company",
		Short: "Companies in the workspace",
	}
	company.AddCommand(companyListCmd())
	return company
}

func companyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List companies, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCompanies(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func jobCmd() *cobra.Command {
	job := &cobra.Command{
		Use:   "job",
		Short: "Manage jobs and their stage pipelines",
	}
	job.AddCommand(jobCreateCmd())
	job.AddCommand(jobListCmd())
	job.AddCommand(jobShowCmd())
	job.AddCommand(jobUpdateCmd())
	job.AddCommand(jobDeleteCmd())
	job.AddCommand(jobStagesCmd())
	return job
}

func jobCreateCmd() *cobra.Command {
	var title, recruiter, rulesFile string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job with the default pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			rules := ""
			if rulesFile != "" {
				data, err := os.ReadFile(rulesFile)
				if err != nil {
					return err
				}
				rules = string(data)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				if !canManageJobs(actor.Role) {
					return fmt.Errorf("only admins and hiring managers can create jobs")
				}
				j, err := e.CreateJob(ctx, engine.JobCreateOptions{
					CompanyID:           actor.CompanyID,
					Title:               title,
					AssignedRecruiterID: recruiter,
					Rules:               rules,
					ActorID:             actor.ID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "job title")
	cmd.Flags().StringVar(&recruiter, "recruiter", "", "assigned recruiter user id")
	cmd.Flags().StringVar(&rulesFile, "rules-file", "", "path to a rule set JSON file")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func jobListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the acting user's accessible jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				filters := repo.JobFilters{CompanyID: actor.CompanyID, Status: status}
				if actor.Role == "recruiter" {
					filters.AssignedRecruiterID = actor.ID
				}
				items, err := e.Repo.ListJobs(ctx, filters)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Recruiter", "Candidates"})
				for _, j := range items {
					rec := ""
					if j.AssignedRecruiterID != nil {
						rec = *j.AssignedRecruiterID
					}
					n, err := e.Repo.CountLinksByJob(ctx, j.ID)
					if err != nil {
						return err
					}
					tw.AppendRow(table.Row{j.ID, j.Title, j.Status, rec, n})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (active, paused, closed)")
	return cmd
}

func jobShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				if err := requireJobAccess(ctx, e, args[0], actor); err != nil {
					return err
				}
				j, err := e.Repo.GetJob(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	return cmd
}

func jobUpdateCmd() *cobra.Command {
	var title, status, recruiter, rulesFile string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				if err := requireJobAccess(ctx, e, args[0], actor); err != nil {
					return err
				}
				opts := engine.JobUpdateOptions{ID: args[0], ActorID: actor.ID}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("status") {
					opts.Status = &status
				}
				if cmd.Flags().Changed("recruiter") {
					opts.AssignedRecruiterID = &recruiter
				}
				if rulesFile != "" {
					data, err := os.ReadFile(rulesFile)
					if err != nil {
						return err
					}
					raw := string(data)
					opts.Rules = &raw
				}
				res, err := e.UpdateJob(ctx, opts)
				if err != nil {
					return err
				}
				if res.StagesSkipped {
					fmt.Println("note: stage replacement skipped, candidates already in pipeline")
				}
				return printJSONOrTable(res.Job)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "job title")
	cmd.Flags().StringVar(&status, "status", "", "status (active, paused, closed)")
	cmd.Flags().StringVar(&recruiter, "recruiter", "", "assigned recruiter user id (empty clears)")
	cmd.Flags().StringVar(&rulesFile, "rules-file", "", "path to a rule set JSON file")
	return cmd
}

func jobDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				if actor.Role != access.RoleAdmin {
					return fmt.Errorf("only admins can delete jobs")
				}
				if err := requireJobAccess(ctx, e, args[0], actor); err != nil {
					return err
				}
				return e.DeleteJob(ctx, args[0], actor.ID)
			})
		},
	}
	return cmd
}

func jobStagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages <id>",
		Short: "Show a job's stage pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				if err := requireJobAccess(ctx, e, args[0], actor); err != nil {
					return err
				}
				trees, err := e.JobStages(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(trees)
				}
				for _, t := range trees {
					marks := ""
					if t.IsMandatory {
						marks += " *"
					}
					if t.IsDefault {
						marks += " (entry)"
					}
					fmt.Printf("%d. %s%s\n", t.Position, t.Name, marks)
					for _, sub := range t.Substages {
						fmt.Printf("   %d.%d %s\n", t.Position, sub.Position, sub.Name)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func candidateCmd() *cobra.Command {
	cand := &cobra.Command{
		Use:   "candidate",
		Short: "Apply and move candidates",
	}
	cand.AddCommand(candidateApplyCmd())
	cand.AddCommand(candidateMoveCmd())
	cand.AddCommand(candidateListCmd())
	cand.AddCommand(candidateHistoryCmd())
	return cand
}

func candidateApplyCmd() *cobra.Command {
	var jobID, name, email, location string
	var experience float64
	var skills, education []string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a candidate to a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobID == "" || name == "" {
				return fmt.Errorf("--job and --name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				if err := requireJobAccess(ctx, e, jobID, actor); err != nil {
					return err
				}
				res, err := e.ApplyCandidate(ctx, engine.ApplyOptions{
					JobID:           jobID,
					Name:            name,
					Email:           email,
					ExperienceYears: experience,
					Location:        location,
					Skills:          skills,
					Education:       education,
					ActorID:         actor.ID,
				})
				if err != nil {
					return err
				}
				if res.AutoRejected {
					fmt.Printf("auto-rejected: %s\n", res.Reason)
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	cmd.Flags().StringVar(&name, "name", "", "candidate name")
	cmd.Flags().StringVar(&email, "email", "", "candidate email")
	cmd.Flags().Float64Var(&experience, "experience", 0, "years of experience")
	cmd.Flags().StringVar(&location, "location", "", "candidate location")
	cmd.Flags().StringArrayVar(&skills, "skill", []string{}, "candidate skill (repeatable)")
	cmd.Flags().StringArrayVar(&education, "education", []string{}, "candidate education (repeatable)")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func candidateMoveCmd() *cobra.Command {
	var toStage string
	cmd := &cobra.Command{
		Use:   "move <application-id>",
		Short: "Move an application to another stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if toStage == "" {
				return fmt.Errorf("--to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				existing, err := e.Repo.GetLink(ctx, args[0])
				if err != nil {
					return err
				}
				if err := requireJobAccess(ctx, e, existing.JobID, actor); err != nil {
					return err
				}
				link, err := e.MoveCandidate(ctx, engine.MoveOptions{
					JobCandidateID: args[0],
					ToStage:        toStage,
					ActorID:        actor.ID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(link)
			})
		},
	}
	cmd.Flags().StringVar(&toStage, "to", "", "target stage name")
	return cmd
}

func candidateListCmd() *cobra.Command {
	var jobID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a job's applications",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobID == "" {
				return fmt.Errorf("--job required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				if err := requireJobAccess(ctx, e, jobID, actor); err != nil {
					return err
				}
				links, err := e.Repo.ListLinksByJob(ctx, jobID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(links)
				}
				stages, err := e.Repo.ListStages(ctx, jobID)
				if err != nil {
					return err
				}
				names := map[string]string{}
				for _, s := range stages {
					names[s.ID] = s.Name
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Candidate", "Stage", "Applied"})
				for _, l := range links {
					tw.AppendRow(table.Row{l.ID, l.CandidateID, names[l.CurrentStageID], l.AppliedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	return cmd
}

func candidateHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <application-id>",
		Short: "Show an application's stage transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				link, err := e.Repo.GetLink(ctx, args[0])
				if err != nil {
					return err
				}
				if err := requireJobAccess(ctx, e, link.JobID, actor); err != nil {
					return err
				}
				entries, err := e.History(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	return cmd
}

func slaCmd() *cobra.Command {
	sla := &cobra.Command{
		Use:   "sla",
		Short: "SLA thresholds and dwell scanning",
	}
	sla.AddCommand(slaSetCmd())
	sla.AddCommand(slaUnsetCmd())
	sla.AddCommand(slaListCmd())
	sla.AddCommand(slaApplyDefaultsCmd())
	sla.AddCommand(slaScanCmd())
	return sla
}

func slaSetCmd() *cobra.Command {
	var stage string
	var days int
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set a stage dwell limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stage == "" || days <= 0 {
				return fmt.Errorf("--stage and a positive --days required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				t, err := e.SetThreshold(ctx, actor.CompanyID, stage, days, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage name")
	cmd.Flags().IntVar(&days, "days", 0, "maximum days in stage")
	return cmd
}

func slaUnsetCmd() *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "unset",
		Short: "Clear a stage dwell limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stage == "" {
				return fmt.Errorf("--stage required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				if err := e.RemoveThreshold(ctx, actor.CompanyID, stage, actor.ID); err != nil {
					return err
				}
				fmt.Printf("SLA for stage %s cleared\n", stage)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage name")
	return cmd
}

func slaListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the company's dwell limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				items, err := e.Repo.ListThresholds(ctx, actor.CompanyID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Stage", "Days", "Updated"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.StageKey, t.ThresholdDays, t.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func slaApplyDefaultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply-defaults",
		Short: "Apply the configured default dwell limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				applied, err := e.ApplyDefaultThresholds(ctx, actor.CompanyID, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(applied)
			})
		},
	}
	return cmd
}

func slaScanCmd() *cobra.Command {
	var notify bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for dwell breaches, optionally fanning out notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				breaches, err := e.ScanCompany(ctx, actor.CompanyID)
				if err != nil {
					return err
				}
				if notify {
					n, err := e.NotifyBreaches(ctx, actor.CompanyID, breaches, actor.ID)
					if err != nil {
						return err
					}
					fmt.Printf("%d notification(s) written\n", n)
				}
				return printJSONOrTable(breaches)
			})
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "write notifications for each breach")
	return cmd
}

func alertsCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Current SLA and feedback alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				out := map[string]any{}
				if kind == "sla" || kind == "all" {
					breaches, err := e.ScanCompany(ctx, actor.CompanyID)
					if err != nil {
						return err
					}
					out["sla"] = breaches
				}
				if kind == "feedback" || kind == "all" {
					alerts, err := e.FeedbackAlerts(ctx, actor.CompanyID)
					if err != nil {
						return err
					}
					out["feedback"] = alerts
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "type", "all", "alert type (sla, feedback, all)")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Activity log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var activityType, jobID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				items, err := e.Repo.ListActivities(ctx, repo.ActivityFilters{
					CompanyID:    actor.CompanyID,
					JobID:        jobID,
					ActivityType: activityType,
					Limit:        n,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of activities")
	cmd.Flags().StringVar(&activityType, "type", "", "activity type filter")
	cmd.Flags().StringVar(&jobID, "job", "", "job id filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := loadConfig(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:             cfg.Auth.JWTSecret,
				AllowLegacyUserHeader: cfg.Auth.AllowLegacyUserHeader,
			}
			if secret := os.Getenv("TALENTLINE_JWT_SECRET"); secret != "" {
				authCfg.JWTSecret = secret
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyUserHeader {
				return fmt.Errorf("TALENTLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Talentline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func loadConfig(workspace string) (*config.Config, error) {
	if path := viper.GetString("config"); path != "" {
		return config.FromFile(path)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := loadConfig(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

// requireJobAccess runs the same per-job gate the HTTP handlers use, so
// a recruiter cannot reach an unassigned job through the CLI either.
func requireJobAccess(ctx context.Context, e engine.Engine, jobID string, actor domain.User) error {
	return access.New(e.DB).ValidateAccess(ctx, jobID, actor.ID, actor.Role)
}

func canManageJobs(role string) bool {
	return role == access.RoleAdmin || role == access.RoleHiringManager
}

func actingUser(ctx context.Context, r repo.Repo) (domain.User, error) {
	id := strings.TrimSpace(viper.GetString("user-id"))
	if id == "" {
		return domain.User{}, fmt.Errorf("--user-id required; run tl seed to create users")
	}
	u, err := r.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("acting user %s: %w", id, err)
	}
	if u.Status != "active" {
		return domain.User{}, fmt.Errorf("acting user %s is inactive", id)
	}
	return u, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
