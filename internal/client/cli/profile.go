package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/mzexplorer/internal/apppassword"
)

// getSimpleText and getSecret are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getSecret = GetSecret

// Profiles lists the stored profiles, marking the selected one.
func (a *App) Profiles(ctx context.Context) error {
	names := a.profiles.ProfileNames()
	if len(names) == 0 {
		printlnFn("No profiles. Use 'profile add' to create one.")
		return nil
	}
	sort.Strings(names)

	current := a.profiles.ProfileName()
	for _, name := range names {
		marker := "  "
		if name == current {
			marker = "* "
		}
		printlnFn(marker + name)
	}
	return nil
}

// ProfileAdd prompts for a name, a region and an app-password, stores the
// profile and loads the context for it. The password is validated before
// anything is written.
func (a *App) ProfileAdd(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Profile name", a.out)
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("profile name must not be empty")
	}

	region, err := getSimpleText(a.reader, "Region (e.g. aws/us-east-1)", a.out)
	if err != nil {
		return err
	}

	secret, err := getSecret(a.out, "App-password")
	if err != nil {
		return err
	}

	cred, err := apppassword.Parse(string(secret))
	if err != nil {
		return err
	}

	if err := a.profiles.AddAndSaveProfile(name, cred, region); err != nil {
		return err
	}
	return a.session.LoadContext(ctx)
}

// ProfileUse switches to a stored profile and rebuilds the context for it.
func (a *App) ProfileUse(ctx context.Context, name string) error {
	return a.session.SetProfile(ctx, name)
}

// ProfileRemove deletes a stored profile. If it was selected, the store
// falls back to another profile and the context is rebuilt.
func (a *App) ProfileRemove(ctx context.Context, name string) error {
	if err := a.profiles.RemoveAndSaveProfile(name); err != nil {
		return err
	}
	return a.session.LoadContext(ctx)
}
