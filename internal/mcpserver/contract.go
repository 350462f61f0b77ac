package mcpserver

// NarrativeFormatURI is the resource URI of NarrativeFormat.
const NarrativeFormatURI = "commitbook://narrative-format"

// NarrativeFormat describes how authors write the per-commit files that
// commitbook turns into tutorial steps.
const NarrativeFormat = `# commitbook Narrative Format

A tutorial is an ordinary git repository. Every commit on the checked-out
branch becomes one step, oldest first.

## Per-commit files

` + "```" + `text
STEP.md     REQUIRED per step; narrative for this commit
OUTPUT.md   OPTIONAL; terminal output shown under the step
README.md   OPTIONAL; project title, description and intro (read at HEAD)
` + "```" + `

1. **STEP.md** starts with a level-1 heading. The heading text is the step
   title; everything after it is the step body.
2. A commit whose STEP.md has no heading uses the commit subject as title.
3. A commit without STEP.md gets a placeholder body and is flagged
   ` + "`" + `synthetic` + "`" + ` in the manifest.
4. STEP.md and OUTPUT.md never show up in file trees or diffs.
5. Binary files are listed but never diffed.

## README frontmatter

` + "```" + `markdown
---
title: Build a URL shortener        # OPTIONAL, defaults to the repository name
description: Twelve small commits   # OPTIONAL
docNumber: URL-0001                 # OPTIONAL, defaults to initials + start year
---

# Build a URL shortener

Intro prose shown on the cover page.
` + "```" + `

## Example STEP.md

` + "```" + `markdown
# Add the redirect handler

Wire ` + "`" + `GET /{code}` + "`" + ` to the store and answer with 302.
` + "```" + `
`
