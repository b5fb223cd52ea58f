package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

const (
	version    = "seatctl v0.3"
	defaultAPI = "http://localhost:8084"
)

var apiURL string

func client() *Client {
	return NewClient(apiURL)
}

var rootCmd = &cobra.Command{
	Use:           "seatctl",
	Short:         "Booking service operations CLI",
	Long:          `Inspect seat maps, list bookings and cancel bookings from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if apiURL != "" {
			return
		}
		_ = godotenv.Load()
		if apiURL = os.Getenv("SEATCTL_API"); apiURL == "" {
			apiURL = defaultAPI
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of seatctl",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

var seatsCmd = &cobra.Command{
	Use:   "seats [screening-id]",
	Short: "Show the seat map of a screening",
	Long:  `Show the seat map of a screening. Without an id, pick one interactively.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var screeningID string
		if len(args) == 1 {
			screeningID = args[0]
		} else {
			picked, err := pickScreening(cmd.Flag("movie").Value.String())
			if err != nil {
				return err
			}
			screeningID = picked
		}

		seats, err := client().SeatMap(screeningID)
		if err != nil {
			return err
		}
		renderSeatMap(cmd.OutOrStdout(), screeningID, seats)
		return nil
	},
}

var screeningsCmd = &cobra.Command{
	Use:   "screenings",
	Short: "List screenings",
	RunE: func(cmd *cobra.Command, args []string) error {
		screenings, err := client().Screenings(cmd.Flag("movie").Value.String())
		if err != nil {
			return err
		}
		renderScreenings(cmd.OutOrStdout(), screenings)
		return nil
	},
}

var bookingsCmd = &cobra.Command{
	Use:   "bookings",
	Short: "List bookings of a user or a screening",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		screening, _ := cmd.Flags().GetString("screening")
		if user == "" && screening == "" {
			return fmt.Errorf("one of --user or --screening is required")
		}
		bookings, err := client().Bookings(user, screening)
		if err != nil {
			return err
		}
		renderBookings(cmd.OutOrStdout(), bookings)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <booking-id>",
	Short: "Cancel a booking and release its seats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			prompt := promptui.Prompt{Label: fmt.Sprintf("Cancel booking %s", args[0]), IsConfirm: true}
			if _, err := prompt.Run(); err != nil {
				return fmt.Errorf("aborted")
			}
		}
		booking, err := client().Cancel(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s booking %s (%d seats released)\n",
			color.GreenString("✔"), booking.BookingID, len(booking.SeatIDs))
		return nil
	},
}

func pickScreening(movieID string) (string, error) {
	screenings, err := client().Screenings(movieID)
	if err != nil {
		return "", err
	}
	if len(screenings) == 0 {
		return "", fmt.Errorf("no screenings found")
	}

	items := make([]string, len(screenings))
	for i, s := range screenings {
		items[i] = fmt.Sprintf("%s  %s %s  %s @ %s", s.ScreeningID, s.Date, s.Time, s.MovieID, s.TheaterID)
	}
	selectScreening := promptui.Select{
		Label: "Select Screening",
		Items: items,
		Size:  10,
	}
	index, _, err := selectScreening.Run()
	if err != nil {
		return "", err
	}
	return screenings[index].ScreeningID, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "booking service base URL (default $SEATCTL_API or "+defaultAPI+")")

	seatsCmd.Flags().String("movie", "", "only offer screenings of this movie when picking")
	screeningsCmd.Flags().String("movie", "", "only list screenings of this movie")
	bookingsCmd.Flags().String("user", "", "list the bookings of a user")
	bookingsCmd.Flags().String("screening", "", "list the bookings of a screening")
	cancelCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	rootCmd.AddCommand(seatsCmd, screeningsCmd, bookingsCmd, cancelCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}
