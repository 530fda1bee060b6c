// Package query builds filter descriptors for a faceted counting service.
//
// Field terms produce fragments when compared against literals:
//
//	b, _ := query.NewBuilder("hathipd", []string{"date_year", "country"})
//	year := b.MustField("date_year")
//	early := query.And(year.Gte(1800), year.Lte(1850))
//	b.SearchLimits(early, b.MustField("country").Eq("USA")).Groups(year)
//
// Sibling fragments passed to SearchLimits are merged: distinct fields are
// conjoined by the service, and constraints on the same field are kept side
// by side as a sequence. And and Or build explicit binary nodes that are
// serialized exactly as built.
package query
