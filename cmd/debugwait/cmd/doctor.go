package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/debugwait/internal/config"
	"github.com/hugo-lorenzo-mato/debugwait/internal/logging"
)

var (
	doctorExtras []string
	doctorOutput string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the handshake configuration",
	Long: `Load and validate the configuration, then show which handshake stages
would run, the timing they would use and any launch parameter problems.

Accepts the same --interval, --timeout, --strict and --no-watch flags as run.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().StringArrayVarP(&doctorExtras, "extra", "e", nil,
		"launch parameter as key=value (repeatable)")
	doctorCmd.Flags().StringVarP(&doctorOutput, "output", "o", "text",
		"output format (text, yaml)")
	addHandshakeFlags(doctorCmd)
	rootCmd.AddCommand(doctorCmd)
}

// doctorReport is the resolved view of a configuration.
type doctorReport struct {
	ConfigFile  string            `yaml:"config_file"`
	Enabled     bool              `yaml:"enabled"`
	Mode        string            `yaml:"mode"`
	Interval    string            `yaml:"interval"`
	Timeout     string            `yaml:"timeout"`
	MaxAttempts int               `yaml:"max_attempts"`
	MarkerMode  string            `yaml:"marker_mode"`
	Watch       bool              `yaml:"watch"`
	Stages      []string          `yaml:"stages"`
	Extras      map[string]string `yaml:"extras,omitempty"`
	Unknown     []string          `yaml:"unknown_extras,omitempty"`
	Issues      []string          `yaml:"issues,omitempty"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	if err := bindHandshakeFlags(cmd); err != nil {
		return err
	}
	cfg, cfgUsed, err := loadConfig()
	if err != nil {
		return err
	}
	overrides, err := config.ParseExtraPairs(doctorExtras)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := config.ValidateConfig(cfg); err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			st := newDoctorStyles(out)
			fmt.Fprintln(out, st.heading.Render("Configuration errors"))
			for _, v := range verrs {
				fmt.Fprintf(out, "  %s %s: %s (got: %v)\n", st.bad.Render("✗"), v.Field, v.Message, v.Value)
			}
		}
		return fmt.Errorf("configuration is invalid")
	}

	report, err := buildDoctorReport(cfg, cfgUsed, overrides)
	if err != nil {
		return err
	}
	return writeDoctorReport(out, report, doctorOutput)
}

func buildDoctorReport(cfg *config.Config, cfgUsed string, overrides map[string]string) (doctorReport, error) {
	settings, err := cfg.HandshakeSettings(overrides)
	if err != nil {
		return doctorReport{}, err
	}
	applyHandshakeFlags(&settings)
	merged := config.MergeExtras(cfg.Extras, overrides)

	stages := make([]string, 0)
	for _, s := range settings.EnabledStages() {
		stages = append(stages, string(s))
	}

	r := doctorReport{
		ConfigFile:  cfgUsed,
		Enabled:     settings.Enabled,
		Mode:        string(settings.Mode),
		Interval:    settings.Policy.Interval.String(),
		Timeout:     settings.Policy.Timeout.String(),
		MaxAttempts: settings.Policy.MaxAttempts(),
		MarkerMode:  fmt.Sprintf("%04o", uint32(settings.MarkerMode.Perm())),
		Watch:       settings.Watch,
		Stages:      stages,
		Unknown:     config.UnknownExtraKeys(merged),
		Issues:      config.ParseExtras(merged).Issues(),
	}
	if len(merged) > 0 {
		r.Extras = logging.NewSanitizer().SanitizeMap(merged)
	}
	return r, nil
}

func writeDoctorReport(w io.Writer, r doctorReport, format string) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		return enc.Close()
	case "text", "":
		writeDoctorText(w, r)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text or yaml)", format)
	}
}

// doctorStyles colors the text report. The renderer follows the writer, so
// output that is not a terminal stays plain.
type doctorStyles struct {
	heading lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	muted   lipgloss.Style
}

func newDoctorStyles(w io.Writer) doctorStyles {
	r := lipgloss.NewRenderer(w)
	return doctorStyles{
		heading: r.NewStyle().Bold(true),
		good:    r.NewStyle().Foreground(lipgloss.Color("#10B981")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		bad:     r.NewStyle().Foreground(lipgloss.Color("#EF4444")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
	}
}

func writeDoctorText(w io.Writer, r doctorReport) {
	st := newDoctorStyles(w)
	file := r.ConfigFile
	if file == "" {
		file = "(none, using defaults)"
	}

	fmt.Fprintln(w, st.heading.Render("Configuration"))
	fmt.Fprintf(w, "  file:        %s\n", file)
	fmt.Fprintf(w, "  mode:        %s\n", r.Mode)
	fmt.Fprintf(w, "  interval:    %s\n", r.Interval)
	fmt.Fprintf(w, "  timeout:     %s (%d attempts)\n", r.Timeout, r.MaxAttempts)
	fmt.Fprintf(w, "  marker mode: %s\n", r.MarkerMode)
	fmt.Fprintf(w, "  watch:       %t\n", r.Watch)
	fmt.Fprintln(w)

	fmt.Fprintln(w, st.heading.Render("Handshake"))
	if r.Enabled {
		fmt.Fprintf(w, "  stages: %s\n", strings.Join(r.Stages, " → "))
	} else {
		fmt.Fprintf(w, "  %s disabled (debug_ping is not \"true\")\n", st.muted.Render("○"))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, st.heading.Render("Launch parameters"))
	if len(r.Extras) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	keys := make([]string, 0, len(r.Extras))
	for k := range r.Extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s=%s\n", k, r.Extras[k])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, st.heading.Render("Checks"))
	if len(r.Unknown) == 0 && len(r.Issues) == 0 {
		fmt.Fprintf(w, "  %s No issues found\n", st.good.Render("✓"))
		return
	}
	for _, k := range r.Unknown {
		msg := fmt.Sprintf("unknown launch parameter %q is ignored", k)
		if hint := config.SuggestExtraKey(k); hint != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", hint)
		}
		fmt.Fprintf(w, "  %s %s\n", st.warn.Render("⚠"), msg)
	}
	for _, issue := range r.Issues {
		fmt.Fprintf(w, "  %s %s\n", st.warn.Render("⚠"), issue)
	}
}
