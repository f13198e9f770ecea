package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/groundplane/groundplane/internal/cli/output"
	"github.com/groundplane/groundplane/internal/logger"
	"github.com/groundplane/groundplane/pkg/config"
	"github.com/groundplane/groundplane/pkg/template"
)

var templatesOutput string

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect configuration templates",
	Long: `Inspect the configuration templates of the configured template source.

Subcommands:
  verify  Load and validate all templates`,
}

var templatesVerifyCmd = &cobra.Command{
	Use:   "verify [template-id]",
	Short: "Load and validate all templates",
	Long: `Load every template from the configured source and validate it: the
descriptor must parse, and every script referenced by an initializer must
exist in the template tree. With a template id argument, show that
template's details instead of the summary table.

The same validation runs during instance bootstrap and tenant provisioning;
verifying after editing templates catches mistakes before they fail a
bootstrap.

Examples:
  # Verify all templates
  groundplane templates verify

  # Show one template's details
  groundplane templates verify default

  # Machine-readable output
  groundplane templates verify --output json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTemplatesVerify,
}

func init() {
	templatesVerifyCmd.Flags().StringVarP(&templatesOutput, "output", "o", "table", "Output format (table|json|yaml)")
	templatesCmd.AddCommand(templatesVerifyCmd)
}

// templateSummary is the serializable form of a verified template.
type templateSummary struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Files       int      `json:"files" yaml:"files"`
	Scripts     int      `json:"scripts" yaml:"scripts"`
	Subsystems  []string `json:"subsystems,omitempty" yaml:"subsystems,omitempty"`
	ScriptPaths []string `json:"script_paths,omitempty" yaml:"script_paths,omitempty"`
}

func runTemplatesVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Keep command output clean: only errors reach the terminal.
	if err := InitLogger(cfg); err != nil {
		return err
	}
	logger.SetLevel("ERROR")

	format, err := output.ParseFormat(templatesOutput)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	source, err := config.OpenTemplateSource(ctx, cfg)
	if err != nil {
		return err
	}

	manager := template.NewManager(source)
	if err := manager.Load(ctx); err != nil {
		return fmt.Errorf("template verification failed: %w", err)
	}

	printer := output.NewPrinter(os.Stdout, format, true)

	if len(args) == 1 {
		return printTemplateDetail(printer, manager, args[0], cfg.Templates.InstanceTemplateID)
	}
	return printTemplateSummary(printer, manager, cfg.Templates.InstanceTemplateID)
}

func printTemplateSummary(printer *output.Printer, manager *template.Manager, instanceTemplateID string) error {
	templates := manager.Templates()
	if len(templates) == 0 {
		printer.Warning("No templates found in the configured source.")
		return nil
	}

	summaries := make([]templateSummary, 0, len(templates))
	for _, tmpl := range templates {
		summaries = append(summaries, summarize(tmpl))
	}

	if printer.Format() != output.FormatTable {
		return printer.Print(summaries)
	}

	table := output.NewTableData("ID", "Name", "Files", "Scripts", "Subsystems")
	for _, s := range summaries {
		subsystems := strings.Join(s.Subsystems, ", ")
		if subsystems == "" {
			subsystems = "-"
		}
		table.AddRow(s.ID, s.Name, strconv.Itoa(s.Files), strconv.Itoa(s.Scripts), subsystems)
	}
	if err := printer.Print(table); err != nil {
		return err
	}

	printer.Println()
	printer.Success(fmt.Sprintf("%d template(s) OK", len(summaries)))
	if _, err := manager.Template(instanceTemplateID); err != nil {
		printer.Warning(fmt.Sprintf("Instance template %q not found; instance bootstrap will fail.", instanceTemplateID))
	}
	return nil
}

func printTemplateDetail(printer *output.Printer, manager *template.Manager, id, instanceTemplateID string) error {
	tmpl, err := manager.Template(id)
	if err != nil {
		return err
	}
	s := summarize(tmpl)

	if printer.Format() != output.FormatTable {
		return printer.Print(s)
	}

	pairs := [][2]string{
		{"ID", s.ID},
		{"Name", s.Name},
		{"Files", strconv.Itoa(s.Files)},
		{"Scripts", strconv.Itoa(s.Scripts)},
	}
	if len(s.Subsystems) > 0 {
		pairs = append(pairs, [2]string{"Subsystems", strings.Join(s.Subsystems, ", ")})
	}
	if id == instanceTemplateID {
		pairs = append(pairs, [2]string{"Role", "instance template"})
	}
	if err := output.SimpleTable(printer.Writer(), pairs); err != nil {
		return err
	}

	if len(s.ScriptPaths) > 0 {
		printer.Println("\nInitializer scripts, in load order:")
		for _, script := range s.ScriptPaths {
			printer.Printf("  %s\n", script)
		}
	}
	return nil
}

func summarize(tmpl *template.Template) templateSummary {
	s := templateSummary{
		ID:      tmpl.ID,
		Name:    tmpl.Name,
		Files:   len(tmpl.Files),
		Scripts: tmpl.ScriptCount(),
	}
	for _, init := range tmpl.Initializers {
		s.Subsystems = append(s.Subsystems, init.Subsystem)
		s.ScriptPaths = append(s.ScriptPaths, init.Scripts...)
	}
	return s
}
