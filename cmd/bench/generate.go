package bench

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/schema"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Jobs
// --------------------------------------------------------------------------

const (
	// maxStartTime bounds the generated creation times to [0, maxStartTime)
	maxStartTime = 10000

	// allDatasets is shared by all generated jobs
	allDatasets = `[{"datasetType": "PHYSICAL_DATASET_SOURCE_FOLDER", "datasetPath": ["", "small", "career", "participant"]}, ` +
		`{"datasetType": "INVALID_DATASET_TYPE", "datasetPath": ["", "against", "professor", "really"]}]`
	parentDataset = `[{"datasetType": "PHYSICAL_DATASET_HOME_FILE", "datasetPath": ["", "friend", "figure"]}]`
)

var (
	jobUsers      = []string{"Eric Johnson", "Kenneth Frost", "Maria Lopez", "Ada Byron"}
	jobQueues     = []string{"High Cost Reflections", "Low Cost User Queries", "UI Previews"}
	jobQueryTypes = []string{"UI_INTERNAL_PREVIEW", "UI_RUN", "REST", "JDBC", "ODBC"}
)

// JobID returns the key of the i-th generated job
func JobID(i int) string {
	return fmt.Sprintf("job-%08d", i)
}

// JobRow returns the i-th generated job. The start times are spread evenly
// over [0, maxStartTime) so every time window holds a predictable share of
// the jobs.
func JobRow(i int) codec.Fields {
	start := int64((i * 7919) % maxStartTime)
	duration := int64(100 + i%900)
	return codec.Fields{
		"jobId":                  codec.String(JobID(i)),
		"jobState":               codec.String("ENQUEUED"),
		schema.CreatedTimeColumn: codec.Int(start),
		"endTime":                codec.Int(start + duration),
		"duration":               codec.Int(duration),
		"user":                   codec.String(jobUsers[i%len(jobUsers)]),
		"sql":                    codec.String(fmt.Sprintf("SELECT * FROM space%d.table%d", i%13, i%97)),
		"queueName":              codec.String(jobQueues[i%len(jobQueues)]),
		"queryType":              codec.String(jobQueryTypes[i%len(jobQueryTypes)]),
		"dataset":                codec.String(fmt.Sprintf("/space%d/folder%d/dataset%d.parquet", i%13, i%31, i)),
		"datasetVersion":         codec.String(uuid.NewString()),
		"space":                  codec.String(fmt.Sprintf("space%d", i%13)),
		"allDatasets":            codec.String(allDatasets),
		"parentDataset":          codec.String(parentDataset),
		"jobResult":              codec.Bytes([]byte(fmt.Sprintf(`{"jobId": %q, "outputRecords": %d}`, JobID(i), i%5000))),
		schema.VersionColumn:     codec.Int(1),
	}
}

// scanReadRow is the record inserted by the scan-read workload after every
// fourth scan
func scanReadRow(key string) codec.Fields {
	row := JobRow(0)
	row["jobId"] = codec.String(key)
	row["jobState"] = codec.String("ENQUEUED")
	row["queueName"] = codec.String("QUEUE_NAME")
	row[schema.CreatedTimeColumn] = codec.Int(5130)
	row["endTime"] = codec.Int(5230)
	row["duration"] = codec.Int(100)
	return row
}

// jobStates are the states the repeated-updates workload moves a job through
var jobStates = []string{"STARTING", "RUNNING", "COMPLETED", "CANCELED", "FAILED"}

// --------------------------------------------------------------------------
// Namespace
// --------------------------------------------------------------------------

const (
	// TablesPerSource is the number of tables under each source's schema folder
	TablesPerSource = 10
	// FilesPerTable is the number of files in each table folder
	FilesPerTable = 40
)

// SourcePath returns the root namespace path of source n
func SourcePath(n int) string {
	return fmt.Sprintf("/mysource%d", n)
}

// FilePath returns the namespace path of file f in table t of source n
func FilePath(n, t, f int) string {
	return fmt.Sprintf("/mysource%d/schema/table%d/file%d.txt", n, t, f)
}

// NamespacePaths returns every path of source n: the source itself, its
// schema folder, all table folders and all files.
func NamespacePaths(n int) []string {
	paths := make([]string, 0, 2+TablesPerSource*(1+FilesPerTable))
	paths = append(paths, SourcePath(n), SourcePath(n)+"/schema")
	for t := 0; t < TablesPerSource; t++ {
		paths = append(paths, fmt.Sprintf("/mysource%d/schema/table%d", n, t))
		for f := 0; f < FilesPerTable; f++ {
			paths = append(paths, FilePath(n, t, f))
		}
	}
	return paths
}

// NamespaceRow returns the namespace entry of path
func NamespaceRow(path string) codec.Fields {
	container := "/"
	if i := strings.LastIndexByte(path, '/'); i > 0 {
		container = path[:i]
	}

	entityType := "FOLDER"
	switch depth := strings.Count(path, "/"); {
	case depth == 1:
		entityType = "SOURCE"
	case strings.HasSuffix(path, ".txt"):
		entityType = "FILE"
	case depth == 3:
		entityType = "DATASET"
	}

	return codec.Fields{
		schema.NamespaceKey: codec.String(path),
		"entityType":        codec.String(entityType),
		"entityId":          codec.String(uuid.NewString()),
		"container":         codec.String(container),
	}
}
