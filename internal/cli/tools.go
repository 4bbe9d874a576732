package cli

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"
)

// NewToolsCmd создаёт команду проверки внешних инструментов.
func NewToolsCmd(cfgFn ConfigFn, outputFn OutputFn) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Check availability of external tools",
		Long: "Resolve every configured external command in PATH and report its\n" +
			"location. The optional segmenter is reported as optional: the run\n" +
			"command degrades gracefully without it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			cfg, err := cfgFn()
			if err != nil {
				return err
			}
			ec := cfg.ExecConfig().WithDefaults()

			type probe struct {
				Name     string `json:"name"`
				Command  string `json:"command"`
				Path     string `json:"path,omitempty"`
				Found    bool   `json:"found"`
				Optional bool   `json:"optional"`
			}
			probes := []probe{
				{Name: "segment", Command: ec.TotalSpineSegBin},
				{Name: "segment-optional", Command: ec.SPINEPSBin, Optional: true},
				{Name: "register", Command: ec.RegisterBin},
				{Name: "warp", Command: ec.WarpBin},
				{Name: "measure", Command: ec.MeasureBin},
				{Name: "qc", Command: ec.QCBin},
			}

			missing := 0
			rows := make([][]string, len(probes))
			for i := range probes {
				p := &probes[i]
				if path, err := exec.LookPath(p.Command); err == nil {
					p.Found = true
					p.Path = path
				} else if !p.Optional {
					missing++
				}
				status := "MISSING"
				if p.Found {
					status = "OK"
				} else if p.Optional {
					status = "MISSING (optional)"
				}
				rows[i] = []string{p.Name, p.Command, status, p.Path}
			}

			out.Print([]string{"TOOL", "COMMAND", "STATUS", "PATH"}, rows, probes)
			if missing > 0 {
				return fmt.Errorf("%d required tool(s) missing", missing)
			}
			return nil
		},
	}
}
