// ABOUTME: The discover command: list recorders advertised on the LAN
// ABOUTME: One mDNS query, printing each answer as it arrives
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/resonate-recorder/internal/discovery"
	"github.com/spf13/cobra"
)

func newDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find recorders advertising over mDNS",
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, cleanup, err := newLogger(cfg, false)
			if err != nil {
				return err
			}
			defer cleanup()

			m := discovery.NewManager(discovery.Config{Logger: logger})
			defer m.Stop()

			out := cmd.OutOrStdout()
			done := make(chan struct{})
			found := 0
			go func() {
				defer close(done)
				for {
					select {
					case s := <-m.Servers():
						found++
						fmt.Fprintf(out, "%s\t%s\t%s\n", s.Name, s.Addr(), strings.Join(s.Info, " "))
					case <-time.After(timeout + time.Second):
						return
					}
				}
			}()

			if err := m.Browse(timeout); err != nil {
				return err
			}
			<-done
			if found == 0 {
				fmt.Fprintln(out, "No recorders found")
			}
			return nil
		},
	}
	cmd.Flags().Duration("timeout", 3*time.Second, "How long to wait for answers")
	return cmd
}
