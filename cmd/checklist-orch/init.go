package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hochfrequenz/checklist-orch/internal/config"
	"github.com/hochfrequenz/checklist-orch/internal/prompts"
)

var initForce bool

const starterChecklist = `---
title: Verification checklist
---

## Tier 1: Setup

- [ ] **SETUP-001**: Install the package from a clean environment and import it.

## Tier 2: Usage

- [ ] **USE-001**: Follow the README quickstart and confirm every step works as written.
`

func init() {
	initCmd := &cobra.Command{
		Use:   "init [DIR]",
		Short: "Create a starter checklist, config and editable prompt templates",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInit,
	}
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing prompt templates")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	out := cmd.OutOrStdout()

	written, err := prompts.Install(filepath.Join(root, "agent-resources", "prompts"), initForce)
	if err != nil {
		return fmt.Errorf("installing prompt templates: %w", err)
	}
	for _, path := range written {
		fmt.Fprintln(out, "created", path)
	}

	checklistPath := filepath.Join(root, "checklist.md")
	if created, err := writeIfMissing(checklistPath, []byte(starterChecklist)); err != nil {
		return err
	} else if created {
		fmt.Fprintln(out, "created", checklistPath)
	}

	configFile := filepath.Join(root, config.LocalConfigName)
	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		cfg := config.Default()
		cfg.Store.DatabasePath = filepath.Join(".checklist-orch", "history.db")
		if err := cfg.Save(configFile); err != nil {
			return err
		}
		fmt.Fprintln(out, "created", configFile)
	}
	return nil
}

func writeIfMissing(path string, content []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	return true, os.WriteFile(path, content, 0644)
}
