package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/term"

	"bibliotheque/library/script"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "run [script|-]",
		Short: "Run a transaction script",
		Long: `Run executes a transaction script, one command per line. Failed commands are
reported as "** <message>" and the script carries on with the next line.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, data, err := readScript(cmd, args)
			if err != nil {
				return err
			}

			a, err := opts.open(cmd, opts.cfg)
			if err != nil {
				return err
			}
			defer closeApp(a)

			digest := blake2b.Sum256(data)
			logger := withCommand(a, cmd)
			logger.WithFields(log.Fields{
				"script":  name,
				"bytes":   len(data),
				"blake2b": hex.EncodeToString(digest[:]),
			}).Info("running script")

			in := script.New(a.Manager, cmd.OutOrStdout(), script.WithLogger(a.Logger.WithField("component", "script")))
			sum, err := in.Run(cmd.Context(), bytes.NewReader(data))
			if err != nil {
				return err
			}

			logger.WithFields(log.Fields{
				"lines":    sum.Lines,
				"executed": sum.Executed,
				"failed":   sum.Failed,
				"stopped":  sum.Stopped,
			}).Info("script finished")

			if strict && sum.Failed > 0 {
				return fmt.Errorf("%d of %d commands failed", sum.Failed, sum.Executed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "exit with an error if any command failed")
	return cmd
}

func readScript(cmd *cobra.Command, args []string) (string, []byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", nil, fmt.Errorf("read stdin: %w", err)
		}
		return "stdin", data, nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", nil, fmt.Errorf("read script: %w", err)
	}
	return args[0], data, nil
}

func newShellCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Type transaction commands interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, opts.cfg)
			if err != nil {
				return err
			}
			defer closeApp(a)

			input := cmd.InOrStdin()
			out := cmd.OutOrStdout()
			interactive := false
			if f, ok := input.(*os.File); ok {
				interactive = term.IsTerminal(int(f.Fd()))
			}

			in := script.New(a.Manager, out,
				script.WithLogger(a.Logger.WithField("component", "script")),
				script.WithEcho(!interactive))

			if interactive {
				fmt.Fprintln(out, "Welcome to bibliotheque!")
				fmt.Fprintln(out, "Commands: acquerir, vendre, preter, renouveler, retourner, inscrire, desinscrire,")
				fmt.Fprintln(out, "          reserver, prendreRes, annulerRes, listerLivres, listerLivresTitre,")
				fmt.Fprintln(out, "          listerPretsMembre, listerReservations, exit")
			}

			sc := bufio.NewScanner(input)
			for {
				if interactive {
					fmt.Fprint(out, "\n> ")
				}
				if !sc.Scan() {
					break
				}
				stop, _, _ := in.Exec(cmd.Context(), sc.Text())
				if stop {
					break
				}
			}
			return sc.Err()
		},
	}
}
