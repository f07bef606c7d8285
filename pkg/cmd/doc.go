// Package cmd provides the dbchores command-line interface.
//
// # Available Commands
//
//   - run: execute the batch described by the config file
//   - glob: execute every .sql and .tmpl file in a directory, in path order
//   - validate: check the config and resolve every connection without
//     connecting
//   - history: list the entries of a history file
//
// Commands are constructed by fx and registered through the "commands"
// value group; see Module.
//
// # Global Options
//
//   - --config, -c: config file (DBCHORES_CONFIG, default dbchores.yaml)
//   - --log-level: debug, info, warn or error
//
// # Example Usage
//
//	dbchores run                                # run the configured batch
//	dbchores run --check --facts-out facts.json # dry run, keep the facts
//	dbchores glob --engine postgres --db acme --dir ./sql
//	dbchores validate
//	dbchores history
//
// # Exit Status
//
// Any failed query makes the command exit non-zero. The history file then
// holds exactly the queries that completed, and re-running the same command
// resumes from the failure.
package cmd
