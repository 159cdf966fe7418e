// Package warehouse runs the SQL produced by the data engineer role and
// renders the result as an ASCII table.
//
// The Client works over any database/sql driver. Processor plugs into a
// RoleAgent as its PostProcessor: it extracts the first ```sql fenced block
// from the model's answer, executes it and appends the table (or a note
// describing the failure) to the answer.
package warehouse
