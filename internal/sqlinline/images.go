package sqlinline

// QUpsertImage writes an image blob, replacing the payload if the id exists.
const QUpsertImage = `--sql 0790b09d-61bf-4a68-bf71-eedc41f61e13
insert into images (id, user_id, data, mime_type, metadata, created_at)
values ($1::uuid, $2::text, $3::bytea, $4::text, coalesce($5::jsonb, '{}'::jsonb), now())
on conflict (id) do update set
    data = excluded.data,
    mime_type = excluded.mime_type,
    metadata = excluded.metadata;
`

const QSelectImage = `--sql 93d58889-277a-4111-9f50-ee6a011ce0af
select id, user_id, data, mime_type, metadata
from images
where id = $1::uuid;
`
