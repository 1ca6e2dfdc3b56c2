package checklist

import (
	"fmt"
	"strings"

	"github.com/hochfrequenz/checklist-orch/internal/domain"
	"gopkg.in/yaml.v3"
)

type yamlChecklist struct {
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Tiers       []yamlTier `yaml:"tiers"`
}

type yamlTier struct {
	Index int         `yaml:"index"`
	Name  string      `yaml:"name"`
	Items []yaml.Node `yaml:"items"`
}

type yamlItem struct {
	ID           string `yaml:"id"`
	Instructions string `yaml:"instructions"`
	Status       string `yaml:"status"`
}

func parseYAML(path string, content []byte) ([]*domain.ChecklistItem, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(content, &root); err != nil {
		return nil, &LoadError{Path: path, Reason: "invalid YAML", Err: err}
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	var doc yamlChecklist
	if err := root.Content[0].Decode(&doc); err != nil {
		return nil, &LoadError{Path: path, Line: root.Content[0].Line, Reason: "malformed checklist structure", Err: err}
	}

	var items []*domain.ChecklistItem
	for i, t := range doc.Tiers {
		tier := domain.Tier{Index: t.Index, Name: strings.TrimSpace(t.Name)}
		if tier.Index == 0 {
			tier.Index = i + 1
		}
		for j := range t.Items {
			node := &t.Items[j]
			var raw yamlItem
			if err := node.Decode(&raw); err != nil {
				return nil, &LoadError{Path: path, Line: node.Line, Reason: fmt.Sprintf("malformed item in %s", tier), Err: err}
			}
			item := domain.NewItem(strings.TrimSpace(raw.ID), tier, strings.TrimSpace(raw.Instructions))
			item.Line = node.Line
			item.PriorStatus = domain.ToStatus(raw.Status)
			if err := validateItem(path, item); err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}
