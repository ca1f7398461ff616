// Package pahedl resolves animepahe episodes into direct download links.
//
// Features:
//   - Quality selection over the mirrors listed on a play page
//   - Locker resolution through pahe.win and kwik, including packed payload decoding
//   - Series pagination with episode ranges and sequential batch resolution
//   - Optional chunked download of the final links
//
// Example:
//
//	e := pahedl.New().WithQuality(720)
//	results, err := e.ResolveSeries(ctx, seriesLink, types.EpisodeRange{All: true})
//	if err != nil {
//		return err
//	}
//	for _, r := range results {
//		if r.OK() {
//			fmt.Println(r.DirectLink)
//		}
//	}
package pahedl
