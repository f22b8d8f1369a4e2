/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/lib/pq"
)

// TrainingJob is the durable registry record for a submitted job. Runtime
// state lives in the broker result backend and is never duplicated here.
type TrainingJob struct {
	Id           int64       `db:"id"`
	JobId        string      `db:"job_id"`
	OwnerId      string      `db:"owner_id"`
	StagingDir   string      `db:"staging_dir"`
	CreationTime pq.NullTime `db:"creation_time"`
}

// GetTrainingJobFieldTags returns the TrainingJobFieldTags value.
func GetTrainingJobFieldTags() map[string]string {
	f := TrainingJob{}
	return getFieldTags(f)
}

// getFieldTags maps lowercase struct field names to db column tags.
func getFieldTags(obj interface{}) map[string]string {
	result := make(map[string]string)
	t := reflect.TypeOf(obj)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		result[strings.ToLower(field.Name)] = field.Tag.Get("db")
	}
	return result
}

// generateCommand generates SQL command string using reflection
// Iterates through struct fields and builds column and value lists
// Skips fields with specified ignoreTag
// Returns formatted SQL command with columns and values
func generateCommand(obj interface{}, format, ignoreTag string) string {
	t := reflect.TypeOf(obj)
	columns := make([]string, 0, t.NumField())
	values := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("db")
		if tag == ignoreTag {
			continue
		}
		columns = append(columns, tag)
		values = append(values, fmt.Sprintf(":%s", tag))
	}
	cmd := fmt.Sprintf(format, strings.Join(columns, ", "), strings.Join(values, ", "))
	return cmd
}

// GetFieldTag returns the FieldTag value.
func GetFieldTag(tags map[string]string, name string) string {
	name = strings.ToLower(name)
	return tags[name]
}
