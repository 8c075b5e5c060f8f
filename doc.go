/*
go-detloss computes the multi-term training loss for an object detector that
jointly predicts bounding boxes, class scores and per-instance embedding
vectors.

Given the raw per-level feature maps of the detection and embedding heads
plus the ground truth annotations of a batch, it assigns each ground truth
instance to a set of candidate prediction positions with a task-aligned
matching strategy, then computes a CIoU localisation term, a binary cross
entropy classification term, a distribution focal regression term and an
embedding similarity term, and combines them into a single scalar with a
per-term breakdown for logging.

The library is a pure forward computation: it holds no state across calls
beyond the configuration fixed at construction, performs no I/O and never
mutates its inputs.

See example usage in the package tests.
*/
package detloss
