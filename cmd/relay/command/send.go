package command

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Report a single action to the monitor",
	Long:  `Connects, reports one action with its payload as state, then disconnects.`,
	Example: `  relay send --type TEST --payload '{}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		actionType, _ := cmd.Flags().GetString("type")
		payload, err := payloadFlag(cmd)
		if err != nil {
			return err
		}

		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		conn, err := dial(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := conn.Send(actionType, payload); err != nil {
			return err
		}
		logger.Info("action_sent", "action", actionType)
		return nil
	},
}

var errorCmd = &cobra.Command{
	Use:     "error",
	Short:   "Report an error to the monitor",
	Example: `  relay error --payload '{"error":true}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := payloadFlag(cmd)
		if err != nil {
			return err
		}

		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		conn, err := dial(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := conn.Error(payload); err != nil {
			return err
		}
		logger.Info("error_sent")
		return nil
	},
}

func payloadFlag(cmd *cobra.Command) (json.RawMessage, error) {
	payload, _ := cmd.Flags().GetString("payload")
	if !json.Valid([]byte(payload)) {
		return nil, fmt.Errorf("--payload must be valid JSON, got %q", payload)
	}
	return json.RawMessage(payload), nil
}

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(errorCmd)

	sendCmd.Flags().StringP("type", "t", "", "action type (required)")
	sendCmd.Flags().String("payload", "{}", "action payload as JSON")
	sendCmd.MarkFlagRequired("type")

	errorCmd.Flags().String("payload", `{"error":true}`, "error payload as JSON")
}
