package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send one prompt, optionally with an image, and print the reply",
	RunE:  runAsk,
}

var (
	flagImage string
	flagRaw   bool
)

func init() {
	askCmd.Flags().StringVar(&flagImage, "image", "", "path to an image to attach")
	askCmd.Flags().BoolVar(&flagRaw, "raw", false, "print the model's markdown instead of HTML")
}

func runAsk(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")

	var image []byte
	if flagImage != "" {
		data, err := os.ReadFile(flagImage)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		image = data
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	reply := a.session.Send(cmd.Context(), prompt, image)
	if reply.Skipped {
		return fmt.Errorf("nothing to send: give a prompt or --image")
	}

	out := reply.Text
	if flagRaw && !reply.Failed() {
		out = reply.Raw
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	if reply.Failed() {
		return fmt.Errorf("request failed: %w", reply.Err)
	}
	return nil
}
