package mcpserver

// OperationContract describes the rules LLM consumers must follow when
// mutating decks through the tools.
const OperationContract = `# Dagaz Deck Operation Contract

Every tool call that mutates a deck MUST follow these rules.

## Index staleness

1. Slide and shape indices are **positional and zero-based**. They are only
   valid at the generation reported by the result they came from.
2. Every structural change (add_text_box, reorder_shape, remove_shape,
   delete_slide) **bumps the generation** and shifts indices. A result with
   a new generation means every index you cached is stale.
3. Pass the generation you observed in the ` + "`generation`" + ` argument. A
   mismatch is rejected with a "stale" error instead of silently mutating
   the wrong shape. Omit it (or pass 0) only right after re-inspecting.
4. After any rejection mentioning staleness: call ` + "`inspect_deck`" + `,
   take fresh indices, retry once.

## Geometry

Positions and sizes are declarative specs resolved against the slide:

- **Inches**: plain decimal strings, e.g. ` + "`\"1.5\"`" + `.
- **Percentages**: ` + "`\"50%\"`" + ` of the slide dimension for that axis.
- **Anchors**: nine named points (top_left, top_center, top_right,
  middle_left, center, middle_right, bottom_left, bottom_center,
  bottom_right), optionally with offset_x/offset_y inches.
- Exactly ONE positioning form per call: left/top, OR anchor, OR a grid
  cell. Mixing forms is rejected.
- Resolved geometry must land strictly inside the slide with positive
  dimensions; otherwise the call is rejected before anything mutates.

## Opacity

- Range is [0.0, 1.0]; out-of-range values are rejected before mutation.
- Opacity >= 1.0 is a no-op that returns a warning instead of writing a
  redundant alpha.
- Shapes without an explicit solid fill or line cannot take the
  corresponding alpha; the result flags which targets applied and carries
  a warning for each that did not.

## Destructive operations

- delete_slide, remove_shape, and deck-wide replace_text require an
  **operator-issued approval token** (scopes slides:delete, shapes:delete,
  text:replace_all). Tokens are signed, time-limited, and single-use.
- The tools cannot mint tokens. Ask the operator; never retry a spent or
  expired token.

## Versioning

- ` + "`deck_version`" + ` is a structural fingerprint: slide count, layouts,
  shape counts, geometry, text. Two decks with the same fingerprint are
  structurally interchangeable.
- Formatting-only changes (fill color, opacity) do not move the
  fingerprint. Use deck_history to see fingerprints before and after each
  recorded operation.

## Workflow

1. ` + "`inspect_deck`" + ` (or ` + "`probe_deck`" + ` for layout capabilities).
2. Mutate with the generation you just observed.
3. Re-inspect after every structural change before touching indices again.
`
