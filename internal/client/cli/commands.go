package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/nutritrack/internal/client/models"
	"github.com/dmitrijs2005/nutritrack/internal/client/repositories/userdata"
	"github.com/dmitrijs2005/nutritrack/internal/client/services"
)

var ErrUsage = errors.New("usage")

func (a *App) AddMeal(ctx context.Context) error {
	var m models.Meal
	var err error

	if m.Name, err = GetSimpleText(a.reader, "Meal name", a.out); err != nil {
		return err
	}
	if m.MealType, err = GetSimpleText(a.reader, "Meal type (breakfast, lunch, dinner, snack)", a.out); err != nil {
		return err
	}
	if m.Calories, err = GetNumber(a.reader, "Calories", a.out, 0); err != nil {
		return err
	}
	if m.Protein, err = GetNumber(a.reader, "Protein (g)", a.out, 0); err != nil {
		return err
	}
	if m.Carbs, err = GetNumber(a.reader, "Carbs (g)", a.out, 0); err != nil {
		return err
	}
	if m.Fat, err = GetNumber(a.reader, "Fat (g)", a.out, 0); err != nil {
		return err
	}
	if m.Notes, err = GetSimpleText(a.reader, "Notes", a.out); err != nil {
		return err
	}

	res, err := a.queue.SaveMeal(ctx, m)
	if err != nil {
		return err
	}
	a.printSave(res)
	return nil
}

func (a *App) AddWorkout(ctx context.Context) error {
	var w models.Workout
	var err error

	if w.Name, err = GetSimpleText(a.reader, "Workout name", a.out); err != nil {
		return err
	}
	if w.Type, err = GetSimpleText(a.reader, "Type (cardio, strength, ...)", a.out); err != nil {
		return err
	}
	if w.Duration, err = GetNumber(a.reader, "Duration (min)", a.out, 0); err != nil {
		return err
	}
	if w.CaloriesBurned, err = GetNumber(a.reader, "Calories burned", a.out, 0); err != nil {
		return err
	}
	if w.Notes, err = GetSimpleText(a.reader, "Notes", a.out); err != nil {
		return err
	}

	res, err := a.queue.SaveWorkout(ctx, w)
	if err != nil {
		return err
	}
	a.printSave(res)
	return nil
}

func (a *App) printSave(res *services.SaveResult) {
	switch {
	case res.Offline:
		fmt.Fprintf(a.out, "Saved offline as %s, it will be sent when the backend is reachable\n", res.Record.TempID)
	case res.Delivery != nil && res.Delivery.OK():
		fmt.Fprintf(a.out, "Saved and synced (server id %s)\n", res.Delivery.ServerID)
	case res.Delivery != nil:
		fmt.Fprintf(a.out, "Saved locally as %s; delivery %s: %v\n", res.Record.TempID, res.Delivery.Status, res.Delivery.Err)
	}
}

func kindArg(args []string, cmd string) (models.Kind, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: %s <meals|workouts>", ErrUsage, cmd)
	}
	return models.ParseKind(args[0])
}

func (a *App) List(ctx context.Context, args []string) error {
	kind, err := kindArg(args, "list")
	if err != nil {
		return err
	}
	recs, err := a.queue.List(ctx, kind)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintf(a.out, "No %s recorded\n", kind)
		return nil
	}

	width := terminalWidth()
	for _, r := range recs {
		state := string(r.State)
		if r.Synced {
			state = "synced #" + r.ServerID
		}
		line := fmt.Sprintf("%4d  %-10s  %s  %s", r.LocalID, state, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Payload)
		fmt.Fprintln(a.out, truncate(line, width))
		if !r.Synced && r.LastError != "" {
			fmt.Fprintln(a.out, truncate(fmt.Sprintf("      last error (%d attempts): %s", r.Attempts, r.LastError), width))
		}
	}
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	if !a.monitor.Online() {
		fmt.Fprintln(a.out, "Offline: records stay queued until the backend is reachable")
		return nil
	}
	for _, kind := range models.Kinds {
		r, err := a.queue.ReplayPending(ctx, kind)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s: %d delivered, %d failed, %d skipped\n", kind, r.Delivered, r.Failed, r.Skipped)
	}
	return nil
}

func (a *App) Status(ctx context.Context) error {
	st, err := a.queue.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "mode: %s\n", a.monitor.Mode())
	for _, kind := range models.Kinds {
		fmt.Fprintf(a.out, "unsynced %s: %d\n", kind, st.Unsynced[kind])
	}
	if st.LastReplayAt.IsZero() {
		fmt.Fprintln(a.out, "last replay: never")
	} else {
		fmt.Fprintf(a.out, "last replay: %s\n", st.LastReplayAt.Local().Format(time.RFC1123))
	}
	return nil
}

func (a *App) Purge(ctx context.Context, args []string) error {
	kind, err := kindArg(args, "purge")
	if err != nil {
		return err
	}
	n, err := a.queue.PurgeSynced(ctx, kind)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Removed %d synced %s\n", n, kind)
	return nil
}

func (a *App) Foods(ctx context.Context) error {
	foods, err := a.foods.List(ctx)
	if err != nil {
		return err
	}
	if len(foods) == 0 {
		fmt.Fprintln(a.out, "Food cache is empty")
		return nil
	}
	for _, f := range foods {
		fmt.Fprintf(a.out, "%-14s %-30s %6.0f kcal\n", f.ID, truncate(f.Name, 30), f.Calories)
	}
	return nil
}

// Color asks the backend for the deploy color and remembers it; offline,
// the last known color is shown.
func (a *App) Color(ctx context.Context) error {
	color, err := a.backend.DeployColor(ctx)
	if err == nil {
		if serr := a.userData.Set(ctx, userdata.KeyDeployColor, []byte(color)); serr != nil {
			a.log.Warn(ctx, "failed to store deploy color", "error", serr)
		}
		fmt.Fprintf(a.out, "deploy color: %s\n", color)
		return nil
	}

	stored, gerr := a.userData.Get(ctx, userdata.KeyDeployColor)
	if gerr != nil {
		return err
	}
	fmt.Fprintf(a.out, "deploy color: %s (last known, backend unreachable)\n", stored)
	return nil
}
