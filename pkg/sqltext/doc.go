// Package sqltext provides lightweight, dialect-agnostic SQL text handling
// built on a participle lexer.
//
// It does not parse SQL. It tokenizes just enough to answer three questions
// that the batch runner needs answered safely:
//
//   - Where are the pyformat parameter markers (%s and %(name)s)?
//   - Is a statement read-only or might it mutate state?
//   - Where does one statement of a script end and the next begin?
//
// String literals, quoted identifiers, dollar-quoted bodies and comments are
// recognized so markers and semicolons inside them are left alone.
//
// # Usage Example
//
//	placeholders, err := sqltext.Placeholders("SELECT * FROM t WHERE id = %(id)s")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if sqltext.Classify("DELETE FROM t") == sqltext.Mutating {
//		fmt.Println("skipping during dry run")
//	}
//
//	stmts, err := sqltext.Split("CREATE TABLE a (id int);\nINSERT INTO a VALUES (1);")
package sqltext
