// Package garden holds the Smart Pot data model and its persistence.
//
// A user owns pots, a pot holds plants, and a plant accumulates sensor
// readings (moisture, light, temperature). Every query is scoped to the
// owning user: a pot or plant belonging to someone else is reported exactly
// like one that does not exist.
//
// The Repository works on a database.DBTX so a handler can bind it to the
// transaction of its unit of work. Deletes cascade in the schema.
package garden
