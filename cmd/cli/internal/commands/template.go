package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	bulkv1 "github.com/wolfeidau/bulkadmin/api/bulk/v1"
)

type TemplateCmd struct {
	Create TemplateCreateCmd `cmd:"" help:"Create a template from a CSV file"`
	List   TemplateListCmd   `cmd:"" help:"List templates"`
	Get    TemplateGetCmd    `cmd:"" help:"Show a template and its rows"`
	Update TemplateUpdateCmd `cmd:"" help:"Replace a template"`
	Delete TemplateDeleteCmd `cmd:"" help:"Delete a template"`
}

type TemplateCreateCmd struct {
	Name        string `help:"Template name, unique within the organization" required:""`
	Type        string `help:"Operation type" required:"" short:"t"`
	File        string `help:"CSV file with the template rows, - reads stdin" short:"f"`
	Description string `help:"Template description"`
}

func (c *TemplateCreateCmd) Run(ctx context.Context, globals *Globals) error {
	var rows []bulkv1.Row
	if c.File != "" {
		var err error
		if rows, err = readRowsFile(c.File); err != nil {
			return err
		}
	}

	clients, err := globals.clients()
	if err != nil {
		return err
	}

	tmpl, err := clients.Templates.Create(ctx, &bulkv1.CreateTemplateRequest{
		Name:          c.Name,
		Description:   c.Description,
		OperationType: c.Type,
		TemplateData:  rows,
	})
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	return printTemplates(globals.printer(), tmpl)
}

type TemplateListCmd struct {
	Type string `help:"Only list templates of this operation type" short:"t"`
}

func (c *TemplateListCmd) Run(ctx context.Context, globals *Globals) error {
	clients, err := globals.clients()
	if err != nil {
		return err
	}

	templates, err := clients.Templates.List(ctx, c.Type)
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	list := make([]*bulkv1.Template, len(templates))
	for i := range templates {
		list[i] = &templates[i]
	}
	return printTemplates(globals.printer(), list...)
}

type TemplateGetCmd struct {
	ID string `arg:"" help:"Template ID"`
}

func (c *TemplateGetCmd) Run(ctx context.Context, globals *Globals) error {
	clients, err := globals.clients()
	if err != nil {
		return err
	}

	tmpl, err := clients.Templates.Get(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}

	p := globals.printer()
	if p.structured() {
		return p.print(tmpl, nil)
	}

	if err := printTemplates(p, tmpl); err != nil {
		return err
	}
	return p.table(rowsTable(tmpl.TemplateData))
}

type TemplateUpdateCmd struct {
	ID          string `arg:"" help:"Template ID"`
	Name        string `help:"Template name" required:""`
	Type        string `help:"Operation type" required:"" short:"t"`
	File        string `help:"CSV file with the template rows, - reads stdin" short:"f"`
	Description string `help:"Template description"`
}

func (c *TemplateUpdateCmd) Run(ctx context.Context, globals *Globals) error {
	var rows []bulkv1.Row
	if c.File != "" {
		var err error
		if rows, err = readRowsFile(c.File); err != nil {
			return err
		}
	}

	clients, err := globals.clients()
	if err != nil {
		return err
	}

	tmpl, err := clients.Templates.Update(ctx, &bulkv1.UpdateTemplateRequest{
		Id:            c.ID,
		Name:          c.Name,
		Description:   c.Description,
		OperationType: c.Type,
		TemplateData:  rows,
	})
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}

	return printTemplates(globals.printer(), tmpl)
}

type TemplateDeleteCmd struct {
	ID string `arg:"" help:"Template ID"`
}

func (c *TemplateDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	clients, err := globals.clients()
	if err != nil {
		return err
	}

	if err := clients.Templates.Delete(ctx, c.ID); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	globals.printer().printf("Template %s deleted\n", c.ID)
	return nil
}

func printTemplates(p *printer, templates ...*bulkv1.Template) error {
	var doc any = templates
	if len(templates) == 1 {
		doc = templates[0]
	}

	return p.print(doc, func() pterm.TableData {
		data := pterm.TableData{{"ID", "Name", "Type", "Rows", "Description", "Updated"}}
		for _, t := range templates {
			data = append(data, []string{
				t.Id,
				t.Name,
				t.OperationType,
				strconv.Itoa(len(t.TemplateData)),
				t.Description,
				t.UpdatedAt.Local().Format(time.DateTime),
			})
		}
		return data
	})
}

// rowsTable renders rows under the sorted union of their columns.
func rowsTable(rows []bulkv1.Row) pterm.TableData {
	columns := rowColumns(rows)
	data := pterm.TableData{append([]string{"#"}, columns...)}
	for i, row := range rows {
		line := []string{strconv.Itoa(i)}
		for _, c := range columns {
			line = append(line, row[c])
		}
		data = append(data, line)
	}
	return data
}
