package cmd

import (
	"fmt"
	"time"

	"contentplane/pkg/api"

	"github.com/spf13/cobra"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// statusIcon covers both artifact and job statuses.
func statusIcon(status string) string {
	switch status {
	case "published", "succeeded":
		return colorGreen + "✓" + colorReset
	case "failed":
		return colorRed + "✗" + colorReset
	case "in_flight":
		return colorYellow + "⏳" + colorReset
	case "scheduled", "pending":
		return colorCyan + "◯" + colorReset
	case "draft":
		return colorDim + "✎" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "published", "succeeded":
		return icon + " " + colorGreen + status + colorReset
	case "failed":
		return icon + " " + colorRed + status + colorReset
	case "in_flight":
		return icon + " " + colorYellow + status + colorReset
	case "scheduled", "pending":
		return icon + " " + colorCyan + status + colorReset
	default:
		return icon + " " + status
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("Mon, 02 Jan 2006 15:04 MST")
}

// formatTimeWithRelative renders past times as "ago" and future ones as "in".
func formatTimeWithRelative(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	d := time.Since(*t)
	if d < 0 {
		return fmt.Sprintf("%s %s(in %s)%s", formatTime(*t), colorDim, relativeDuration(-d), colorReset)
	}
	return fmt.Sprintf("%s %s(%s ago)%s", formatTime(*t), colorDim, relativeDuration(d), colorReset)
}

func relativeDuration(duration time.Duration) string {
	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func printArtifact(cmd *cobra.Command, a *api.ArtifactResponse) {
	cmd.Printf("%s %sArtifact%s\n", statusIcon(a.Status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, a.ID)
	cmd.Printf("%sTheme:%s       %s\n", colorDim, colorReset, a.ThemeID)
	cmd.Printf("%sType:%s        %s\n", colorDim, colorReset, a.ContentType)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(a.Status))
	if a.FailureReason != nil {
		cmd.Printf("%sReason:%s      %s%s%s\n", colorDim, colorReset, colorRed, *a.FailureReason, colorReset)
	}
	if a.Concept != "" {
		cmd.Printf("%sConcept:%s     %s\n", colorDim, colorReset, a.Concept)
	}
	if a.MagicalElement != "" {
		cmd.Printf("%sElement:%s     %s\n", colorDim, colorReset, a.MagicalElement)
	}
	if a.Title != "" {
		cmd.Printf("%sTitle:%s       %s\n", colorDim, colorReset, a.Title)
	}
	for i, b := range a.Blocks {
		cmd.Printf("  %d. [%s] %s\n", i+1, b.Kind, b.Text)
	}
	if len(a.MediaURLs) > 0 {
		cmd.Printf("%sMedia:%s       %d attached\n", colorDim, colorReset, len(a.MediaURLs))
	}
}

func printJob(cmd *cobra.Command, j *api.JobResponse) {
	cmd.Printf("%s %sPublish Job%s\n", statusIcon(j.Status), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, j.ID)
	cmd.Printf("%sArtifact:%s    %s\n", colorDim, colorReset, j.ArtifactID)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(j.Status))
	cmd.Printf("%sTarget:%s      %s\n", colorDim, colorReset, formatTimeWithRelative(&j.TargetPublishTime))
	cmd.Printf("%sAttempts:%s    %d\n", colorDim, colorReset, j.AttemptCount)
	if j.Status == "pending" && j.AttemptCount > 0 {
		cmd.Printf("%sNext try:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(&j.NextAttemptAt))
	}
	if j.FailureReason != nil {
		cmd.Printf("%sReason:%s      %s%s%s\n", colorDim, colorReset, colorRed, *j.FailureReason, colorReset)
	}
	if j.LastError != nil {
		cmd.Printf("%sLast error:%s  %s\n", colorDim, colorReset, *j.LastError)
	}
}

func printOutcome(cmd *cobra.Command, o *api.OutcomeResponse) {
	switch {
	case o.Job != nil:
		cmd.Printf("✓ %s (%s) scheduled for %s\n", o.ThemeID, o.Weekday, formatTime(o.Job.TargetPublishTime))
		cmd.Printf("  Artifact: %s\n  Job:      %s\n", o.Artifact.ID, o.Job.ID)
	case o.Artifact != nil:
		reason := o.Error
		if o.Artifact.FailureReason != nil {
			reason = *o.Artifact.FailureReason
		}
		cmd.Printf("✗ %s (%s) %s: %s\n", o.ThemeID, o.Weekday, o.Artifact.Status, reason)
		cmd.Printf("  Artifact: %s\n", o.Artifact.ID)
	default:
		cmd.Printf("✗ %s (%s): %s\n", o.ThemeID, o.Weekday, o.Error)
	}
}
