package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing recordlink.yml")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively create a recordlink.yml",
	Long:  "Walk through the backend and relationship options and write a recordlink.yml to the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat("recordlink.yml"); err == nil && !initForce {
			return fmt.Errorf("recordlink.yml already exists (use --force to overwrite)")
		}

		doc, err := askSyncOptions()
		if err != nil {
			return err
		}

		payload, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		if err := os.WriteFile("recordlink.yml", payload, 0644); err != nil {
			return fmt.Errorf("failed to write recordlink.yml: %w", err)
		}

		color.New(color.FgGreen, color.Bold).Println("✓ wrote recordlink.yml")
		color.New(color.FgCyan).Println("  Run 'recordlink sync' to establish the denormalized baseline.")
		return nil
	},
}

func askSyncOptions() (map[string]interface{}, error) {
	doc := map[string]interface{}{}

	for _, side := range []string{"parent", "child"} {
		backend, err := askBackend(side)
		if err != nil {
			return nil, err
		}
		doc[side] = backend
	}

	var lookupField, parentFieldName, parentFields string
	questions := []*survey.Question{
		{
			Name:     "lookup",
			Prompt:   &survey.Input{Message: "Child field holding the parent's external key:", Default: "parent_ext_id"},
			Validate: survey.Required,
		},
		{
			Name:     "parentField",
			Prompt:   &survey.Input{Message: "Child field for the embedded parent snapshot:", Default: "parent"},
			Validate: survey.Required,
		},
		{
			Name:   "fields",
			Prompt: &survey.Input{Message: "Parent fields to denormalize (comma-separated):"},
		},
	}
	answers := struct {
		Lookup      string
		ParentField string
		Fields      string
	}{}
	if err := survey.Ask(questions, &answers); err != nil {
		return nil, err
	}
	lookupField, parentFieldName, parentFields = answers.Lookup, answers.ParentField, answers.Fields

	relationship := map[string]interface{}{
		"lookup_field":      lookupField,
		"parent_field_name": parentFieldName,
	}
	if fields := splitFields(parentFields); len(fields) > 0 {
		relationship["parent_fields"] = fields
	}

	trackList := false
	if err := survey.AskOne(&survey.Confirm{
		Message: "Maintain a list of child summaries on the parent?",
	}, &trackList); err != nil {
		return nil, err
	}
	if trackList {
		var listName, listFields string
		if err := survey.AskOne(&survey.Input{
			Message: "Parent field for the child summary list:",
		}, &listName, survey.WithValidator(survey.Required)); err != nil {
			return nil, err
		}
		if err := survey.AskOne(&survey.Input{
			Message: "Child fields to include in each summary (comma-separated):",
		}, &listFields, survey.WithValidator(survey.Required)); err != nil {
			return nil, err
		}
		relationship["related_list_name"] = listName
		relationship["related_list_fields"] = splitFields(listFields)
	}

	doc["relationship"] = relationship
	return doc, nil
}

func askBackend(side string) (map[string]interface{}, error) {
	var kind string
	if err := survey.AskOne(&survey.Select{
		Message: fmt.Sprintf("Backend for the %s collection:", side),
		Options: []string{"memory", "postgres", "redis", "sqlite"},
		Default: "memory",
	}, &kind); err != nil {
		return nil, err
	}

	var entity string
	if err := survey.AskOne(&survey.Input{
		Message: fmt.Sprintf("Entity name for the %s collection:", side),
	}, &entity, survey.WithValidator(survey.Required)); err != nil {
		return nil, err
	}

	backend := map[string]interface{}{
		"kind":   kind,
		"entity": entity,
	}

	switch kind {
	case "postgres", "sqlite":
		var url string
		if err := survey.AskOne(&survey.Input{
			Message: fmt.Sprintf("Connection string for the %s backend:", kind),
		}, &url, survey.WithValidator(survey.Required)); err != nil {
			return nil, err
		}
		backend["url"] = url
	case "redis":
		var addr string
		if err := survey.AskOne(&survey.Input{
			Message: "Redis address (host:port):",
			Default: "localhost:6379",
		}, &addr, survey.WithValidator(survey.Required)); err != nil {
			return nil, err
		}
		backend["addr"] = addr
	}
	return backend, nil
}

func splitFields(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
