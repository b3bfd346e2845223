package repository

import (
	"strconv"
	"strings"
)

// Column lists shared by the queries of each table. They must match the
// migrations; SELECT and Scan order follow the slice order.

// ChatColumns lists the chats table.
var ChatColumns = TableColumns{
	TableName: "chats",
	Columns: []string{
		"id",
		"proyecto_id",
		"creado_por_email",
		"creado_por_nombre",
		"messages",
		"created_at",
		"updated_at",
	},
}

// TicketColumns lists the tickets table.
var TicketColumns = TableColumns{
	TableName: "tickets",
	Columns: []string{
		"id",
		"numero",
		"support_id",
		"proyecto_id",
		"proyecto_nombre",
		"modulo",
		"titulo",
		"descripcion",
		"estado",
		"prioridad",
		"creado_por_nombre",
		"creado_por_email",
		"created_at",
		"updated_at",
		"resolved_at",
	},
}

// ProjectColumns lists the proyectos table.
var ProjectColumns = TableColumns{
	TableName: "proyectos",
	Columns: []string{
		"id",
		"nombre",
		"slug",
		"logo_url",
		"api_base_url",
		"api_key",
		"activo",
		"created_at",
		"updated_at",
	},
}

// ContactColumns lists the proyecto_contactos table.
var ContactColumns = TableColumns{
	TableName: "proyecto_contactos",
	Columns: []string{
		"email",
		"nombre",
		"proyecto_id",
		"created_at",
	},
}

// OperatorColumns lists the operators table.
var OperatorColumns = TableColumns{
	TableName: "operators",
	Columns: []string{
		"id",
		"email",
		"nombre",
		"password_hash",
		"created_at",
		"updated_at",
	},
}

// SessionColumns lists the sessions table.
var SessionColumns = TableColumns{
	TableName: "sessions",
	Columns: []string{
		"id",
		"operator_id",
		"token",
		"expires_at",
		"created_at",
		"ip_address",
		"user_agent",
	},
}

// ActivityColumns lists the actividad table.
var ActivityColumns = TableColumns{
	TableName: "actividad",
	Columns: []string{
		"id",
		"tipo",
		"actor",
		"recurso",
		"recurso_id",
		"resultado",
		"detalle",
		"ip_address",
		"request_id",
		"created_at",
	},
}

// TableColumns generates SQL fragments from a column list.
type TableColumns struct {
	TableName string
	Columns   []string
}

// Select returns "a, b, c".
func (tc TableColumns) Select() string {
	return strings.Join(tc.Columns, ", ")
}

// SelectAs returns the columns qualified by alias, for joins.
func (tc TableColumns) SelectAs(alias string) string {
	out := make([]string, len(tc.Columns))
	for i, col := range tc.Columns {
		out[i] = alias + "." + col
	}
	return strings.Join(out, ", ")
}

// Placeholders returns "$1, $2, ..." for every column.
func (tc TableColumns) Placeholders() string {
	out := make([]string, len(tc.Columns))
	for i := range tc.Columns {
		out[i] = "$" + strconv.Itoa(i+1)
	}
	return strings.Join(out, ", ")
}

// Count returns the number of columns.
func (tc TableColumns) Count() int {
	return len(tc.Columns)
}

// Without returns a copy excluding the named columns.
func (tc TableColumns) Without(exclude ...string) TableColumns {
	skip := make(map[string]bool, len(exclude))
	for _, col := range exclude {
		skip[col] = true
	}
	kept := make([]string, 0, len(tc.Columns))
	for _, col := range tc.Columns {
		if !skip[col] {
			kept = append(kept, col)
		}
	}
	return TableColumns{TableName: tc.TableName, Columns: kept}
}
