// Package vision matches an uploaded image against a tenant's product
// catalog. The image is never embedded directly: a vision model first writes
// a structured description, that description is embedded with the same text
// model the rest of the system uses, and the resulting vector is searched
// through the catalog adapter. The description string is kept on the result
// so mismatches can be inspected.
package vision

// describePrompt asks the vision model for the attributes that separate
// near-identical catalog items. Color wording matters most in practice:
// models that answer "red" for burgundy or "black" for dark grey produce
// embeddings that match the wrong product.
const describePrompt = `Describe the main product in this image for catalog matching. Answer in compact English, one attribute per line:

Item type: (dress, jeans, sneaker, watch, bag, ...)
Color: be precise. Burgundy, red, and pink are three different colors. Grey and black are different colors. Navy and blue are different colors. Name secondary colors too.
Material/texture: (denim, leather, knit, satin, matte plastic, ...)
Cut/fit: (slim, oversized, A-line, high-waisted, ...)
Distinguishing details: (buttons, zippers, prints, logos, stitching, heel shape, ...)
Style: (casual, formal, sporty, vintage, ...)

Describe only what is visible. Do not guess the brand.`
