package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/whiskertech/petfeeder/pkg/notify"
	"github.com/whiskertech/petfeeder/pkg/store"
)

var (
	notifyEmail   string
	notifyEnabled bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and change feeder settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBackend(cmd.Context())
		if err != nil {
			return err
		}
		setting, err := b.settings.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if setting == nil {
			fmt.Printf("%s is not set\n", args[0])
			return nil
		}
		fmt.Printf("%s = %s\n", setting.ConfigKey, setting.Value)
		return nil
	},
}

var settingsThresholdCmd = &cobra.Command{
	Use:   "weight-threshold <grams>",
	Short: "Set the weight threshold above which feeds are denied",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		grams, err := strconv.ParseFloat(args[0], 64)
		if err != nil || grams <= 0 {
			return fmt.Errorf("invalid weight %q", args[0])
		}
		b, err := newBackend(cmd.Context())
		if err != nil {
			return err
		}
		if err := b.settings.Put(cmd.Context(), store.SettingWeightThreshold, args[0]); err != nil {
			return err
		}
		fmt.Printf("Weight threshold set to %.1fg\n", grams)

		// Broadcast to the device too; the stored setting is authoritative,
		// so a failed push only warrants a note.
		if gw, err := b.gateway(cmd.Context()); err == nil {
			if err := gw.PushConfig(cmd.Context(), store.SettingWeightThreshold, args[0]); err != nil {
				fmt.Printf("Note: could not push the new threshold to the device: %v\n", err)
			}
		} else {
			fmt.Printf("Note: device not configured, threshold not pushed: %v\n", err)
		}
		return nil
	},
}

var settingsNotifyCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Configure email notifications for feed outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBackend(cmd.Context())
		if err != nil {
			return err
		}

		value, err := json.Marshal(notify.EmailConfig{
			Email:   notifyEmail,
			Enabled: notifyEnabled,
		})
		if err != nil {
			return err
		}

		if err := b.settings.Put(cmd.Context(), store.SettingEmailNotifications, string(value)); err != nil {
			return err
		}

		if notifyEnabled {
			fmt.Printf("Feed notifications enabled for %s\n", notifyEmail)
		} else {
			fmt.Println("Feed notifications disabled")
		}
		return nil
	},
}

func init() {
	settingsNotifyCmd.Flags().StringVar(&notifyEmail, "email", "", "recipient address")
	settingsNotifyCmd.Flags().BoolVar(&notifyEnabled, "enabled", true, "whether notifications are sent")

	settingsCmd.AddCommand(settingsGetCmd, settingsThresholdCmd, settingsNotifyCmd)
	rootCmd.AddCommand(settingsCmd)
}
